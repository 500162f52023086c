package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardTrack/pkg/geo"
)

type scriptedProvider struct {
	src chan Fix
}

func (p *scriptedProvider) Subscribe(_ context.Context) (<-chan Fix, func(), error) {
	return p.src, func() {}, nil
}

func sampleFix(at time.Time) Fix {
	return Fix{
		Location:   geo.Location{Latitude: 31.23, Longitude: 121.47, AccuracyMeters: 10},
		CapturedAt: at,
	}
}

// 消费方阻塞时挤掉最旧的点，最新位置必须留在缓冲里
func TestSlowConsumerKeepsNewestFix(t *testing.T) {
	src := make(chan Fix)
	s := NewSampler(&scriptedProvider{src: src}, time.Second, 64)

	out, err := s.Start(context.Background())
	require.NoError(t, err)

	base := time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		src <- sampleFix(base.Add(time.Duration(i) * time.Second))
	}
	close(src)

	var got []Fix
	for fix := range out {
		got = append(got, fix)
	}

	require.NotEmpty(t, got)
	assert.Equal(t, base.Add(39*time.Second), got[len(got)-1].CapturedAt,
		"newest fix must survive backpressure")
	assert.Len(t, got, 16)
}

func TestStartTwiceRejected(t *testing.T) {
	src := make(chan Fix)
	s := NewSampler(&scriptedProvider{src: src}, time.Second, 8)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Start(context.Background())
	assert.Error(t, err)
	close(src)
}
