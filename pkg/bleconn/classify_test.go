package bleconn

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyTypeTags(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass ErrorClass
		wantBack  BackoffClass
	}{
		{name: "context deadline exceeded", err: context.DeadlineExceeded, wantClass: ClassTimeout, wantBack: BackoffDBus},
		{name: "TimeoutError", err: &TimeoutError{Cause: errors.New("slow")}, wantClass: ClassTimeout, wantBack: BackoffDBus},
		{name: "DeviceNotFoundError", err: &DeviceNotFoundError{Message: "gone"}, wantClass: ClassOutOfSlots, wantBack: BackoffOutOfSlots},
		{name: "BrokenPipeError", err: &BrokenPipeError{Cause: errors.New("pipe")}, wantClass: ClassTransient, wantBack: BackoffDBus},
		{name: "EOFLikeError", err: &EOFLikeError{Cause: errors.New("eof")}, wantClass: ClassTransient, wantBack: BackoffDBus},
		{name: "DBusError", err: &DBusError{Message: "org.bluez.Error.Failed"}, wantClass: ClassTransient, wantBack: BackoffDBus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, backoff := Classify(tt.err)
			if class != tt.wantClass || backoff != tt.wantBack {
				t.Errorf("Classify(%v) = (%v, %v), want (%v, %v)", tt.err, class, backoff, tt.wantClass, tt.wantBack)
			}
		})
	}
}

// TestClassifyKeywordPrecedence pins the two keyword-overlap resolutions
// called out for this classifier: OutOfSlots beats the broader Transient
// set, and TransientMedium is checked ahead of Transient.
func TestClassifyKeywordPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantClass ErrorClass
	}{
		{name: "connection cancel resolves to out of slots", msg: "ESP_GATT_CONN_CONN_CANCEL", wantClass: ClassOutOfSlots},
		{name: "fail establish resolves to transient medium", msg: "ESP_GATT_CONN_FAIL_ESTABLISH", wantClass: ClassTransientMedium},
		{name: "plain transient keyword", msg: "le-connection-abort-by-local", wantClass: ClassTransient},
		{name: "long backoff keyword", msg: "ESP_GATT_ERROR", wantClass: ClassTransientLong},
		{name: "device missing substring", msg: "widget not found", wantClass: ClassDeviceMissing},
		{name: "unknown dbus unknown object", msg: "org.freedesktop.DBus.Error.UnknownObject", wantClass: ClassDeviceMissing},
		{name: "normal disconnect", msg: "Disconnected", wantClass: ClassNormalDisconnect},
		{name: "unrecognized message", msg: "something else entirely", wantClass: ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, _ := Classify(errors.New(tt.msg))
			if class != tt.wantClass {
				t.Errorf("Classify(%q) class = %v, want %v", tt.msg, class, tt.wantClass)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	class, backoff := Classify(nil)
	if class != ClassUnknown || backoff != BackoffDefault {
		t.Errorf("Classify(nil) = (%v, %v), want (ClassUnknown, BackoffDefault)", class, backoff)
	}
}

func TestBackoffDurationOutOfRange(t *testing.T) {
	if got := BackoffDuration(BackoffClass(999)); got != BackoffDuration(BackoffDefault) {
		t.Errorf("BackoffDuration(out of range) = %v, want default %v", got, BackoffDuration(BackoffDefault))
	}
}
