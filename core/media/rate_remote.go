package media

import (
	"context"
	"sync"
	"time"

	"Replayer/logger"
)

// DefaultRemoteTimeout 单次远程控制调用的超时
const DefaultRemoteTimeout = 5 * time.Second

// RemotePlayer 通过异步控制接口访问的嵌入式播放器
type RemotePlayer interface {
	SetPlaybackRate(ctx context.Context, rate float64) error
	GetPlaybackRate(ctx context.Context) (float64, error)
	// OnPlaybackRateChange 播放器确认速率变化（包括播放器自身发起的变化）
	OnPlaybackRateChange(fn func(rate float64)) (cancel func())
}

// RemoteOptions 远程控制器配置
type RemoteOptions struct {
	Timeout  time.Duration
	Dispatch func(fn func())
}

// RemoteRateController 远程播放器的速率控制器。
// 设置请求即发即忘，缓存速率在播放器确认后更新。
type RemoteRateController struct {
	player   RemotePlayer
	timeout  time.Duration
	dispatch func(fn func())
	ctx      context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	confirmed  float64
	pending    float64
	hasPending bool

	emitter *rateEmitter
	detach  func()
}

// NewRemoteRateController 创建远程速率控制器，初始速率从播放器读取，失败时视为 1
func NewRemoteRateController(player RemotePlayer, opts RemoteOptions) *RemoteRateController {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteTimeout
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(fn func()) { go fn() }
	}
	ctx, cancel := context.WithCancel(context.Background())

	initial := 1.0
	readCtx, readCancel := context.WithTimeout(ctx, opts.Timeout)
	if rate, err := player.GetPlaybackRate(readCtx); err == nil && ValidateRate(rate) == nil {
		initial = rate
	} else if err != nil {
		logger.Warn("读取远程播放速率失败，使用默认值", logger.ErrorField(err))
	}
	readCancel()

	c := &RemoteRateController{
		player:    player,
		timeout:   opts.Timeout,
		dispatch:  opts.Dispatch,
		ctx:       ctx,
		cancel:    cancel,
		confirmed: initial,
		emitter:   newRateEmitter(initial),
	}
	c.detach = player.OnPlaybackRateChange(c.confirm)
	return c
}

func (c *RemoteRateController) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed
}

// PendingRate 返回尚未被确认的请求速率
func (c *RemoteRateController) PendingRate() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.hasPending
}

func (c *RemoteRateController) SetPlaybackRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	if c.emitter.isDestroyed() {
		return nil
	}

	c.mu.Lock()
	c.pending = rate
	c.hasPending = true
	c.mu.Unlock()

	c.dispatch(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
		if err := c.player.SetPlaybackRate(ctx, rate); err != nil {
			logger.Warn("远程设置播放速率失败", logger.Float64("rate", rate), logger.ErrorField(err))
			c.mu.Lock()
			if c.hasPending && c.pending == rate {
				c.hasPending = false
			}
			c.mu.Unlock()
		}
	})
	return nil
}

// confirm 播放器报告的实际速率
func (c *RemoteRateController) confirm(rate float64) {
	if c.emitter.isDestroyed() {
		return
	}
	c.mu.Lock()
	c.confirmed = rate
	if c.hasPending && c.pending == rate {
		c.hasPending = false
	}
	c.mu.Unlock()
	c.emitter.emit(rate)
}

func (c *RemoteRateController) OnPlaybackRateChanged(fn func(rate float64)) func() {
	return c.emitter.subscribe(fn)
}

func (c *RemoteRateController) Destroy() {
	if !c.emitter.destroy() {
		return
	}
	c.detach()
	c.cancel()
	c.mu.Lock()
	c.hasPending = false
	c.mu.Unlock()
}

// ========== 进程内资源的远程适配 ==========

type resourcePlayer struct {
	res RateResource
}

// AsRemotePlayer 把进程内资源包装成异步控制接口，用于以嵌入方式托管的音轨
func AsRemotePlayer(res RateResource) RemotePlayer {
	return resourcePlayer{res: res}
}

func (p resourcePlayer) SetPlaybackRate(ctx context.Context, rate float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.res.SetRate(rate)
	return nil
}

func (p resourcePlayer) GetPlaybackRate(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.res.Rate(), nil
}

func (p resourcePlayer) OnPlaybackRateChange(fn func(rate float64)) func() {
	return p.res.OnRateChange(fn)
}
