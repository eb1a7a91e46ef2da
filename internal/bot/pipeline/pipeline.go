// Package pipeline прием входящих событий: каждое событие проходит ворота
// identity, entitlement и rate limit в этом порядке и только затем попадает
// в диалог. Первые отказавшие ворота отвечают пользователю и останавливают
// обработку.
package pipeline

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/keymutex"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// Class какие ворота применяются к событию.
type Class struct {
	Privileged  bool // требует действующей подписки
	RateLimited bool // расходует лимит сообщений
}

// Request событие в процессе обработки.
type Request struct {
	Event bot.Event
	User  *models.User
	Class Class
	// Notices уходят пользователю перед диспетчеризацией и не блокируют ее.
	Notices []bot.Reply
}

// Outcome решение ворот.
type Outcome struct {
	reject *bot.Reply
}

// Proceed пропустить событие дальше.
func Proceed() Outcome { return Outcome{} }

// Reject остановить обработку и ответить пользователю.
func Reject(reply bot.Reply) Outcome { return Outcome{reject: &reply} }

// Rejected остановлена ли обработка.
func (o Outcome) Rejected() bool { return o.reject != nil }

// Reply ответ отказа.
func (o Outcome) Reply() bot.Reply {
	if o.reject == nil {
		return bot.Reply{}
	}
	return *o.reject
}

// Gate одни ворота конвейера. Ошибка означает внутренний сбой, а не отказ.
type Gate interface {
	Name() string
	Check(ctx context.Context, req *Request) (Outcome, error)
}

// Dispatcher диалоговая машина.
type Dispatcher interface {
	Classify(ctx context.Context, ev bot.Event) Class
	Dispatch(ctx context.Context, req *Request) ([]bot.Reply, error)
}

// Responder исходящий канал.
type Responder interface {
	Send(ctx context.Context, chatID int64, reply bot.Reply) error
	Answer(ctx context.Context, callbackID string, reply bot.Reply) error
}

// Pipeline конвейер приема событий.
type Pipeline struct {
	gates      []Gate
	dispatcher Dispatcher
	responder  Responder
	locks      *keymutex.KeyMutex[int64]
	workers    int
	log        *slog.Logger
}

// New собирает конвейер. Ворота применяются в переданном порядке.
func New(dispatcher Dispatcher, responder Responder, workers int, log *slog.Logger, gates ...Gate) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		gates:      gates,
		dispatcher: dispatcher,
		responder:  responder,
		locks:      keymutex.New[int64](),
		workers:    workers,
		log:        log,
	}
}

// Run обрабатывает события из канала пулом воркеров, пока канал не закроется
// или не отменится ctx. События одного пользователя выполняются по очереди.
func (p *Pipeline) Run(ctx context.Context, events <-chan bot.Event) {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				p.Handle(ctx, ev)
			}()
		}
	}
}

// Handle проводит одно событие через ворота и диалог. Никогда не паникует:
// любой внутренний сбой превращается в общий ответ об ошибке.
func (p *Pipeline) Handle(ctx context.Context, ev bot.Event) {
	const op = "pipeline.Handle"
	log := p.log.With(
		slog.String("op", op),
		sl.TelegramID(ev.From.TelegramID),
		slog.Int("update_id", ev.UpdateID),
	)
	out := &outbox{p: p, ev: ev, log: log}
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			metrics.Admissions.WithLabelValues("dispatch", "panic").Inc()
			out.send(ctx, ErrorReply())
		}
		out.finish(ctx)
	}()

	unlock := p.locks.Lock(ev.From.TelegramID)
	defer unlock()

	req := &Request{Event: ev}
	req.Class = p.dispatcher.Classify(ctx, ev)

	for _, g := range p.gates {
		res, err := g.Check(ctx, req)
		if err != nil {
			log.Error("gate failed", slog.String("gate", g.Name()), sl.Err(err))
			metrics.Admissions.WithLabelValues(g.Name(), "error").Inc()
			out.send(ctx, ErrorReply())
			return
		}
		if res.Rejected() {
			metrics.Admissions.WithLabelValues(g.Name(), "rejected").Inc()
			out.send(ctx, res.Reply())
			return
		}
	}

	for _, n := range req.Notices {
		out.send(ctx, n)
	}

	replies, err := p.dispatcher.Dispatch(ctx, req)
	if err != nil {
		log.Error("dispatch failed", sl.Err(err))
		metrics.Admissions.WithLabelValues("dispatch", "error").Inc()
		out.send(ctx, ErrorReply())
		return
	}
	metrics.Admissions.WithLabelValues("dispatch", "ok").Inc()
	for _, r := range replies {
		out.send(ctx, r)
	}
}

// outbox доставляет ответы одного события. Первый ответ с Alert становится
// ответом на callback, остальные уходят сообщениями. Callback подтверждается
// ровно один раз.
type outbox struct {
	p        *Pipeline
	ev       bot.Event
	log      *slog.Logger
	answered bool
}

func (o *outbox) send(ctx context.Context, r bot.Reply) {
	if r.Alert && o.ev.IsCallback() && !o.answered {
		o.answered = true
		if err := o.p.responder.Answer(ctx, o.ev.CallbackID, r); err != nil {
			o.log.Warn("failed to answer callback", sl.Err(err))
		}
		return
	}
	if r.Text == "" {
		return
	}
	r.Alert = false
	if err := o.p.responder.Send(ctx, o.ev.ChatID, r); err != nil {
		o.log.Warn("failed to send reply", sl.Err(err))
	}
}

func (o *outbox) finish(ctx context.Context) {
	if o.ev.IsCallback() && !o.answered {
		o.answered = true
		if err := o.p.responder.Answer(ctx, o.ev.CallbackID, bot.Reply{}); err != nil {
			o.log.Warn("failed to answer callback", sl.Err(err))
		}
	}
}
