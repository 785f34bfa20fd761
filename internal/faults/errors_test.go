package faults

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindOf(t *testing.T) {
	busy := New(KindResource, CodeResourceBusy, "staging slot mapped")

	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
		fatal     bool
	}{
		{"nil", nil, "", false, false},
		{"transient", New(KindTransient, CodeNoNewFrame, "timeout"), KindTransient, true, false},
		{"resource wrapped", fmt.Errorf("readback: %w", busy), KindResource, true, false},
		{"fatal device", New(KindFatalDevice, CodeDeviceLost, "gone"), KindFatalDevice, false, true},
		{"fatal config", New(KindFatalConfig, CodeUnsupported, "nv21"), KindFatalConfig, false, true},
		{"usage", New(KindUsage, CodeBadState, "double end"), KindUsage, false, false},
		{"unclassified", io.ErrUnexpectedEOF, KindFatalDevice, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestErrorIsMatchesCode(t *testing.T) {
	sentinel := New(KindFatalDevice, CodeDeviceLost, "device lost")
	derived := sentinel.With("display", 0)

	if !errors.Is(derived, sentinel) {
		t.Error("derived error should match sentinel by code")
	}
	if errors.Is(derived, New(KindTransient, CodeNoNewFrame, "x")) {
		t.Error("different codes must not match")
	}
	if sentinel.Context != nil {
		t.Error("With must not mutate the original error")
	}
}

func TestErrorIsSeparatesSentinels(t *testing.T) {
	finalized := New(KindUsage, CodeFinalized, "sink already finalized")
	notWriting := New(KindUsage, CodeNotWriting, "sink is not writing")
	begun := New(KindUsage, CodeAlreadyBegun, "sink already begun")

	if errors.Is(notWriting, finalized) || errors.Is(begun, finalized) || errors.Is(finalized, notWriting) {
		t.Error("usage errors with different codes must not match")
	}
	if errors.Is(New(KindTransient, CodeNotReady, "x"), New(KindResource, CodeNotReady, "x")) {
		t.Error("same code with a different kind must not match")
	}
	if !errors.Is(Wrap(KindUsage, CodeBadState, "end failed", finalized), finalized) {
		t.Error("wrapped sentinel must still match through the cause")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("pipe closed")
	err := Wrap(KindFatalDevice, CodeDeviceLost, "grab process exited", cause)

	if got, want := err.Error(), "[DEVICE_LOST] grab process exited: pipe closed"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
}
