package media

// RateResource 进程内可直接读写速率的播放资源
type RateResource interface {
	Rate() float64
	SetRate(rate float64)
	// OnRateChange 资源自身的速率变化事件
	OnRateChange(fn func(rate float64)) (cancel func())
}

// LocalRateController 直接操作进程内资源的速率控制器
type LocalRateController struct {
	res     RateResource
	emitter *rateEmitter
	detach  func()
}

// NewLocalRateController 绑定资源并转发其速率变化
func NewLocalRateController(res RateResource) *LocalRateController {
	c := &LocalRateController{
		res:     res,
		emitter: newRateEmitter(res.Rate()),
	}
	c.detach = res.OnRateChange(c.emitter.emit)
	return c
}

func (c *LocalRateController) PlaybackRate() float64 {
	if c.emitter.isDestroyed() {
		return c.emitter.lastRate()
	}
	return c.res.Rate()
}

func (c *LocalRateController) SetPlaybackRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}
	if c.emitter.isDestroyed() {
		return nil
	}
	c.res.SetRate(rate)
	// 资源未同步回调时由这里补发，重复值会被去重
	c.emitter.emit(c.res.Rate())
	return nil
}

func (c *LocalRateController) OnPlaybackRateChanged(fn func(rate float64)) func() {
	return c.emitter.subscribe(fn)
}

func (c *LocalRateController) Destroy() {
	if c.emitter.destroy() {
		c.detach()
	}
}
