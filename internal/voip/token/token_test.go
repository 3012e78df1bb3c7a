package token

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 64; n++ {
		b := make([]byte, n)
		rng.Read(b)
		got, err := DecodeHex(EncodeHex(b))
		require.NoError(t, err)
		require.True(t, bytes.Equal(b, got), "length %d", n)
	}
}

func TestDecodeHex(t *testing.T) {
	testCases := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "00ff", want: []byte{0x00, 0xff}},
		{in: " 0A0b ", want: []byte{0x0a, 0x0b}},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "zz", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := DecodeHex(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func exerciseStore(t *testing.T, s Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)

	updates, err := s.Observe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, []byte{0xde, 0xad}))

	select {
	case tok := <-updates:
		require.Equal(t, []byte{0xde, 0xad}, tok)
	case <-time.After(2 * time.Second):
		t.Fatal("no token update observed")
	}

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad}, got)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{
		Addr:    mr.Addr(),
		Key:     "voipcenter:push_token",
		Channel: "voipcenter:push_token:updates",
	})
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	stored, err := mr.Get("voipcenter:push_token")
	require.NoError(t, err)
	require.Equal(t, "dead", stored)
}

func TestMemoryStoreKeepsLatestForSlowObserver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore()
	updates, err := s.Observe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, []byte{1}))
	require.NoError(t, s.Save(ctx, []byte{2}))

	require.Equal(t, []byte{2}, <-updates)
}
