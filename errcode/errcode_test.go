package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", InvalidCurve, InvalidCurve},
		{"wrapped code", fmt.Errorf("save: %w", NotFound), NotFound},
		{"E wins over cause", &E{C: InvalidParams, Err: Unavailable}, InvalidParams},
		{"wrapped E", fmt.Errorf("api: %w", Wrap(Timeout, "read", errors.New("i/o"))), Timeout},
		{"plain", errors.New("boom"), Error},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Of(tc.err); got != tc.want {
				t.Fatalf("Of() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Error, "op", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
}

func TestEError(t *testing.T) {
	e := &E{C: Unavailable, Op: "read_sample", Err: errors.New("no device")}
	if got, want := e.Error(), "read_sample: unavailable: no device"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
