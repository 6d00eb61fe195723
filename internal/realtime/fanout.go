package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/logger"
)

const (
	TypeSnapshot = "snapshot"
	TypeECG      = "ecg"
	TypeEEG      = "eeg"
	TypeAlert    = "alert"
)

const (
	publishQueueSize = 64
	publishTimeout   = 2 * time.Second
)

// Publisher forwards encoded messages to other instances. *RedisBridge is
// the production implementation.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Fanout pushes messages to local WebSocket clients and, when a publisher is
// set, to other instances. Remote publishing runs on its own goroutine so a
// slow publisher never blocks Send.
type Fanout struct {
	hub     *Hub
	pub     Publisher
	pending chan []byte
	log     *zap.Logger
}

// NewFanout starts the publish worker when pub is non-nil. The worker stops
// when ctx is done.
func NewFanout(ctx context.Context, hub *Hub, pub Publisher, log *zap.Logger) *Fanout {
	f := &Fanout{hub: hub, pub: pub, log: logger.Module(log, "realtime")}
	if pub != nil {
		f.pending = make(chan []byte, publishQueueSize)
		go f.publishLoop(ctx)
	}
	return f
}

// Send encodes payload once and delivers it everywhere. When the publish
// queue is full the remote copy is dropped; local delivery is unaffected.
func (f *Fanout) Send(msgType string, payload any) {
	data, err := Encode(msgType, payload)
	if err != nil {
		f.log.Error("encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	f.hub.Broadcast(data)

	if f.pending == nil {
		return
	}
	select {
	case f.pending <- data:
	default:
		f.log.Warn("publish queue full, dropping remote message", zap.String("type", msgType))
	}
}

func (f *Fanout) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-f.pending:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := f.pub.Publish(pctx, data); err != nil {
				f.log.Warn("redis publish failed", zap.Error(err))
			}
			cancel()
		}
	}
}
