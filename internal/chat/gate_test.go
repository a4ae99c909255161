package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBanChecker struct {
	permanent bool
	suspended bool
	remaining time.Duration
	err       error
}

func (f *fakeBanChecker) IsPermanentlyBanned(ctx context.Context, ip string) (bool, error) {
	return f.permanent, f.err
}

func (f *fakeBanChecker) CheckTempBan(ctx context.Context, ip string) (bool, time.Duration, error) {
	return f.suspended, f.remaining, f.err
}

func TestAdmit_Allowed(t *testing.T) {
	gate := NewGate(&fakeBanChecker{})

	d, err := gate.Admit(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected admission")
	}
	if d.Notice != "" {
		t.Errorf("expected empty notice, got %q", d.Notice)
	}
}

func TestAdmit_PermanentBan(t *testing.T) {
	gate := NewGate(&fakeBanChecker{permanent: true})

	d, err := gate.Admit(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Notice != "Has sido baneado permanentemente." {
		t.Errorf("unexpected notice: %q", d.Notice)
	}
}

func TestAdmit_TempBan(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      string
	}{
		{"thirty seconds rounds up", 30 * time.Second, "Suspendido temporalmente. Tiempo restante: 1 minutos."},
		{"ninety seconds rounds up", 90 * time.Second, "Suspendido temporalmente. Tiempo restante: 2 minutos."},
		{"exact minutes", 5 * time.Minute, "Suspendido temporalmente. Tiempo restante: 5 minutos."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(&fakeBanChecker{suspended: true, remaining: tt.remaining})

			d, err := gate.Admit(context.Background(), "10.0.0.1")
			if err != nil {
				t.Fatalf("Admit() error: %v", err)
			}
			if d.Allowed {
				t.Fatal("expected rejection")
			}
			if d.Notice != tt.want {
				t.Errorf("notice = %q, want %q", d.Notice, tt.want)
			}
		})
	}
}

func TestAdmit_PermanentTakesPrecedence(t *testing.T) {
	gate := NewGate(&fakeBanChecker{permanent: true, suspended: true, remaining: time.Minute})

	d, err := gate.Admit(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if d.Notice != "Has sido baneado permanentemente." {
		t.Errorf("expected permanent ban notice, got %q", d.Notice)
	}
}

func TestAdmit_StoreError(t *testing.T) {
	gate := NewGate(&fakeBanChecker{err: errors.New("redis down")})

	if _, err := gate.Admit(context.Background(), "10.0.0.1"); err == nil {
		t.Fatal("expected error from failing store")
	}
}

func TestRemainingMinutes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{time.Second, 1},
		{59 * time.Second, 1},
		{60 * time.Second, 1},
		{61 * time.Second, 2},
		{10 * time.Minute, 10},
	}

	for _, tt := range tests {
		if got := remainingMinutes(tt.d); got != tt.want {
			t.Errorf("remainingMinutes(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
