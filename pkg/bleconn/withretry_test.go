package bleconn

import (
	"context"
	"errors"
	"testing"
)

func TestRetryBluetoothConnectionErrorSucceedsEventually(t *testing.T) {
	calls := 0
	err := RetryBluetoothConnectionError(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("le-connection-abort-by-local")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryBluetoothConnectionError() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestRetryBluetoothConnectionErrorExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("le-connection-abort-by-local")
	err := RetryBluetoothConnectionError(context.Background(), 3, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryBluetoothConnectionErrorStopsOnNormalDisconnect(t *testing.T) {
	calls := 0
	err := RetryBluetoothConnectionError(context.Background(), 5, func(context.Context) error {
		calls++
		return errors.New("Disconnected")
	})
	if err == nil {
		t.Fatal("RetryBluetoothConnectionError() = nil error, want the normal-disconnect error surfaced")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1: a normal disconnect should not be retried", calls)
	}
}
