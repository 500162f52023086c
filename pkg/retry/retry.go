package retry

import "time"

// Policy 统一的重试策略，离线同步队列与其他 at-least-once 操作共用，
// 避免各个 service 里散落的临时计数器。
type Policy struct {
	// MaxAttempts 总尝试次数上限（含首次）。
	MaxAttempts int
	// BaseDelay 首次重试前的等待时间，0 表示不等待。
	BaseDelay time.Duration
	// MaxDelay 指数退避的上限。
	MaxDelay time.Duration
}

// Default 队列默认策略：5 次尝试，指数退避封顶 2 分钟。
func Default(maxAttempts int) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Minute,
	}
}

// Exhausted 判断第 attempts 次失败后是否已达上限。
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Delay 返回第 attempt 次重试前的退避时间（attempt 从 1 开始）。
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
