package gtest

import (
	"os"
	"strconv"
	"testing"
	"time"
)

// timeScale multiplies every duration returned by [ScaleMs].
// Set BENOR_TEST_TIME_SCALE on slow machines.
var timeScale = func() float64 {
	s := os.Getenv("BENOR_TEST_TIME_SCALE")
	if s == "" {
		return 1
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		panic("BENOR_TEST_TIME_SCALE must be a positive number")
	}
	return f
}()

// ScaleMs returns ms milliseconds, scaled by BENOR_TEST_TIME_SCALE.
func ScaleMs(ms int64) time.Duration {
	return time.Duration(float64(ms) * timeScale * float64(time.Millisecond))
}

// ReceiveSoon receives a value from ch within a short, scaled timeout,
// failing the test otherwise.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	return ReceiveOrTimeout(t, ch, ScaleMs(500))
}

// ReceiveOrTimeout receives a value from ch within the given timeout,
// failing the test otherwise.
func ReceiveOrTimeout[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", timeout)
	}

	panic("unreachable")
}

// NotSending fails the test if ch has a value ready within a short delay.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(ScaleMs(20))
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, got %v", v)
	case <-timer.C:
		// Okay.
	}
}

// SendSoon sends v on ch within a short, scaled timeout,
// failing the test otherwise.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScaleMs(500))
	defer timer.Stop()

	select {
	case ch <- v:
		// Okay.
	case <-timer.C:
		t.Fatalf("could not send value within %s", ScaleMs(500))
	}
}
