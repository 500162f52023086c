package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/geo"
	"GuardTrack/pkg/logger"
)

// Fix 一次定位采样，只读，产生后不再修改
type Fix struct {
	Location   geo.Location `json:"location"`
	SpeedMps   *float64     `json:"speed_mps,omitempty"`
	HeadingDeg *float64     `json:"heading_deg,omitempty"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Provider 对平台定位 API 的包装。Subscribe 返回的 channel 在 stop
// 或 ctx 取消后关闭，由 Provider 自己负责。
// 系统定位权限被收回时实现方应返回 pkgerrors.PermissionDenied。
type Provider interface {
	Subscribe(ctx context.Context) (fixes <-chan Fix, stop func(), err error)
}

// Sampler 持有唯一一路定位订阅，显式 Start/Stop 生命周期，
// 同时保留一个有限长度的最近采样环用于距离/速度统计。
type Sampler struct {
	provider Provider
	timeout  time.Duration

	mu      sync.Mutex
	stop    func()
	running bool

	history    []Fix
	historyCap int
}

// NewSampler 构造 Sampler，timeout 是单次取点的超时，historyCap 是采样环容量。
func NewSampler(provider Provider, timeout time.Duration, historyCap int) *Sampler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Sampler{
		provider:   provider,
		timeout:    timeout,
		historyCap: historyCap,
	}
}

// Start 开启定位流。返回的 channel 由 Sampler 持有并在 Stop 后关闭。
// 重复 Start 返回 LocationUnavailable。
func (s *Sampler) Start(ctx context.Context) (<-chan Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, pkgerrors.LocationUnavailable
	}

	src, stop, err := s.provider.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Fix, 16)
	s.stop = stop
	s.running = true

	go func() {
		defer close(out)
		for fix := range src {
			s.record(fix)
			select {
			case out <- fix:
			default:
				// 消费方落后时挤掉最旧的点，定位流只保最新位置
				select {
				case stale := <-out:
					logger.Logger.Warn("Stale location fix dropped, consumer too slow",
						zap.Time("captured_at", stale.CapturedAt),
					)
				default:
				}
				select {
				case out <- fix:
				default:
				}
			}
		}

		s.mu.Lock()
		s.running = false
		s.stop = nil
		s.mu.Unlock()
	}()

	return out, nil
}

// Stop 结束定位流，对未启动的 Sampler 是 no-op
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Current 单次取点，超时返回 LocationTimeout
func (s *Sampler) Current(ctx context.Context) (Fix, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	src, stop, err := s.provider.Subscribe(ctx)
	if err != nil {
		return Fix{}, err
	}
	defer stop()

	select {
	case fix, ok := <-src:
		if !ok {
			return Fix{}, pkgerrors.LocationUnavailable
		}
		s.record(fix)
		return fix, nil
	case <-ctx.Done():
		return Fix{}, pkgerrors.LocationTimeout
	}
}

func (s *Sampler) record(fix Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, fix)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
}

// History 返回最近采样的副本
func (s *Sampler) History() []Fix {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Fix, len(s.history))
	copy(out, s.history)
	return out
}

// DistanceCovered 最近采样环内的累计移动距离（米）
func (s *Sampler) DistanceCovered() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for i := 1; i < len(s.history); i++ {
		total += geo.Haversine(s.history[i-1].Location, s.history[i].Location)
	}
	return total
}
