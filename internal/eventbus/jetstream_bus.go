package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/annel0/voxelgen/internal/logging"
	nats "github.com/nats-io/nats.go"
)

// JetStreamBus реализует EventBus поверх NATS JetStream.
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	prefix    string
	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к кластеру NATS и гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "VOXEL". Subjects: <stream в нижнем регистре>.<тип>.
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "VOXEL"
	}
	prefix := strings.ToLower(stream)

	nc, err := nats.Connect(url, nats.Name("voxelgen"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err = js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{prefix + ".*"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	logging.Info("JetStream шина подключена: %s stream=%s", url, stream)
	return &JetStreamBus{nc: nc, js: js, stream: stream, prefix: prefix}, nil
}

// Publish сериализует Envelope в JSON и публикует в subject <prefix>.<type>.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = jb.js.Publish(jb.prefix+"."+ev.EventType, data, nats.Context(ctx))
	if err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("jetstream publish %s: %w", ev.EventType, err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт эфемерный consumer на новые события и вызывает handler асинхронно.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	return jb.subscribe(ctx, f, h, nats.DeliverNew())
}

// Replay доставляет события из стрима начиная с since, затем продолжает выдавать новые.
func (jb *JetStreamBus) Replay(ctx context.Context, f Filter, since time.Time, h Handler) (Subscription, error) {
	return jb.subscribe(ctx, f, h, nats.StartTime(since))
}

func (jb *JetStreamBus) subscribe(ctx context.Context, f Filter, h Handler, deliver nats.SubOpt) (Subscription, error) {
	subj := jb.prefix + ".*"
	if len(f.Types) == 1 {
		subj = jb.prefix + "." + f.Types[0]
	}

	natSub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logging.Warn("JetStream: не удалось разобрать сообщение %s: %v", msg.Subject, err)
		} else if matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}, nats.ManualAck(), deliver, nats.AckWait(30*time.Second), nats.BindStream(jb.stream))
	if err != nil {
		return nil, fmt.Errorf("jetstream subscribe %s: %w", subj, err)
	}

	return &jetSub{natSub}, nil
}

// jetSub обёртка вокруг *nats.Subscription чтобы удовлетворить наш интерфейс.
type jetSub struct {
	s *nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	_ = j.s.Unsubscribe()
}

// Metrics возвращает текущие метрики.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
		InFlight:  0, // jetstream keeps its own queue
	}
}

// Close дожидается доставки и закрывает соединение.
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}

// StreamInfo состояние стрима событий
type StreamInfo struct {
	Stream   string
	Messages uint64
	Bytes    uint64
	First    time.Time
	Last     time.Time
}

// Info возвращает текущее состояние стрима.
func (jb *JetStreamBus) Info() (StreamInfo, error) {
	si, err := jb.js.StreamInfo(jb.stream)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("stream info %s: %w", jb.stream, err)
	}
	return StreamInfo{
		Stream:   jb.stream,
		Messages: si.State.Msgs,
		Bytes:    si.State.Bytes,
		First:    si.State.FirstTime,
		Last:     si.State.LastTime,
	}, nil
}
