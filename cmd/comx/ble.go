package main

import (
	"context"
	"fmt"
	"time"

	"github.com/commatea/comx-ble/pkg/bleconn"
	"github.com/commatea/comx-ble/pkg/bleconn/gattadapter"
	"github.com/commatea/comx-ble/pkg/config"
	"github.com/commatea/comx-ble/pkg/logger"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"
)

var bleCfgFile string

// newBLECmd creates the ble command family.
func newBLECmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ble",
		Short: "Manage resilient BLE connections",
	}
	cmd.PersistentFlags().StringVar(&bleCfgFile, "ble-config", "", "BLE config file (default: ./ble.yaml)")

	cmd.AddCommand(
		newBLEConnectCmd(),
		newBLEStatusCmd(),
		newBLEClearCacheCmd(),
	)
	return cmd
}

func newBLEConnectCmd() *cobra.Command {
	var adapter string
	var maxAttempts int

	cmd := &cobra.Command{
		Use:   "connect <address>",
		Short: "Establish a resilient connection to a BLE device by address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBLEConfig(bleCfgFile)
			if err != nil {
				return fmt.Errorf("load ble config: %w", err)
			}
			if adapter == "" {
				adapter = cfg.Adapter
			}
			if maxAttempts <= 0 {
				maxAttempts = cfg.MaxAttempts
			}
			if maxAttempts <= 0 {
				maxAttempts = bleconn.DefaultMaxAttempts
			}

			log := logger.New(logger.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
				File:   cfg.Logging.File,
			})

			address, err := bleconn.ParseAddress(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), bleconn.BleakSafetyTimeout*time.Duration(maxAttempts))
			defer cancel()

			// deviceView stays a nil interface without a bus, so the
			// bleconn components skip their bus-dependent steps.
			var deviceView bleconn.DeviceView
			var reaper *bleconn.Reaper
			view, err := bleconn.NewBlueZView(ctx, log)
			if err != nil {
				log.Warn("bleconn: continuing without a platform bus", "error", err)
			} else {
				deviceView = view
				reaper = bleconn.NewReaper(view, bleconn.NewBlueZDisconnector(view.Conn()), log)
			}

			slots := bleconn.NewSlotManager(deviceView)
			slots.RegisterAdapter(adapter, cfg.AdapterSlots)

			factory := gattadapter.Factory(bluetooth.DefaultAdapter)
			device := bleconn.Device{Address: address}

			client, err := bleconn.EstablishConnection(ctx, deviceView, slots, reaper, factory, device, args[0], bleconn.Options{
				MaxAttempts:      maxAttempts,
				UseServicesCache: &cfg.UseServicesCache,
			})
			if err != nil {
				return fmt.Errorf("connect %s: %w", address, err)
			}
			defer client.Disconnect(ctx)

			fmt.Printf("Connected to %s\n", address)
			return nil
		},
	}
	cmd.Flags().StringVar(&adapter, "adapter", "", "adapter to register slots for (default: config value)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "maximum connect attempts (default: config value)")
	return cmd
}

func newBLEStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show BLE adapter slot diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadBLEConfig(bleCfgFile)
			if err != nil {
				return fmt.Errorf("load ble config: %w", err)
			}
			log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

			ctx, cancel := context.WithTimeout(cmd.Context(), bleconn.DBusConnectTimeout)
			defer cancel()
			view, err := bleconn.NewBlueZView(ctx, log)
			if err != nil {
				fmt.Printf("No platform bus available: %v\n", err)
				return nil
			}
			defer view.Close()

			slots := bleconn.NewSlotManager(view)
			slots.RegisterAdapter(cfg.Adapter, cfg.AdapterSlots)
			for adapter, diag := range slots.Diagnostics() {
				fmt.Printf("%s: %d/%d slots free\n", adapter, diag.Free, diag.Max)
			}
			return nil
		},
	}
}

func newBLEClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache <address>",
		Short: "Discard a cached GATT service table for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := bleconn.ParseAddress(args[0])
			if err != nil {
				return err
			}
			factory := gattadapter.Factory(bluetooth.DefaultAdapter)
			client := factory(bleconn.Device{Address: address}, nil, false)
			if err := bleconn.ClearCache(cmd.Context(), client); err != nil {
				return fmt.Errorf("clear cache for %s: %w", address, err)
			}
			fmt.Printf("Cleared cache for %s\n", address)
			return nil
		},
	}
}
