package readiness

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_NoTargets(t *testing.T) {
	assert.NoError(t, NewWaiter().Wait(context.Background()))
}

func TestWait_HTTPEventuallyReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWaiter(WithTimeout(5*time.Second), WithInterval(10*time.Millisecond))
	require.NoError(t, w.Wait(context.Background(), srv.URL))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWait_TCPReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	w := NewWaiter(WithTimeout(5*time.Second), WithInterval(10*time.Millisecond))
	assert.NoError(t, w.Wait(context.Background(), ln.Addr().String()))
}

func TestWait_TimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w := NewWaiter(WithTimeout(300*time.Millisecond), WithInterval(20*time.Millisecond))
	start := time.Now()
	err = w.Wait(context.Background(), addr, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), addr)
	assert.Contains(t, err.Error(), srv.URL)
	assert.Less(t, time.Since(start), 5*time.Second)
}
