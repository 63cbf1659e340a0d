package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制REST请求速率；轮询清算时每秒一次查询加突发卖单，
// 必须限速以免触发交易所封禁。
type RateLimiter interface {
	Wait()
}

// TokenBucketLimiter 令牌桶限速器。
type TokenBucketLimiter struct {
	mu     sync.Mutex
	rate   float64 // 每秒补充令牌数
	burst  float64 // 桶容量
	tokens float64
	last   time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	b := float64(burst)
	if b < 1 {
		b = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  b,
		tokens: b,
		last:   time.Now(),
	}
}

// Wait 阻塞直到可以消费一个令牌。
func (l *TokenBucketLimiter) Wait() {
	l.mu.Lock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return
	}
	need := (1 - l.tokens) / l.rate
	l.tokens = 0
	l.mu.Unlock()
	time.Sleep(time.Duration(need*float64(time.Second)) + time.Millisecond)
}

func (l *TokenBucketLimiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}
