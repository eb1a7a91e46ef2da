package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/services/entitlement"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
)

func (m *Machine) subscriptionMenu(ctx context.Context, t *turn) ([]bot.Reply, error) {
	info, err := m.deps.Entitlements.Info(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	active := info.HasSubscription && info.Status != models.StatusCancelled
	return []bot.Reply{markdown(bot.FormatSubscriptionInfo(info), bot.SubscriptionKeyboard(active))}, nil
}

func (m *Machine) subscriptionInfo(ctx context.Context, t *turn) ([]bot.Reply, error) {
	info, err := m.deps.Entitlements.Info(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	kb := [][]bot.Button{{{Text: "🔙 Назад", Action: bot.ActionBackToSubscription}}}
	return []bot.Reply{markdown(bot.FormatSubscriptionInfo(info), kb)}, nil
}

func (m *Machine) viewPlans(ctx context.Context, _ *turn) ([]bot.Reply, error) {
	plans, err := m.deps.Payments.Plans(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return []bot.Reply{alert(noPlansText)}, nil
	}
	return []bot.Reply{markdown(plansText(plans), bot.PlansKeyboard(plans))}, nil
}

// planFromArg тариф по идентификатору из callback. nil означает, что тарифа нет.
func (m *Machine) planFromArg(ctx context.Context, arg string) (*models.Plan, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, nil
	}
	p, err := m.deps.Payments.Plan(ctx, id)
	if errors.Is(err, payment.ErrPlanNotFound) {
		return nil, nil
	}
	return p, err
}

func (m *Machine) planDetails(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.planFromArg(ctx, t.ev.Arg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{alert(planNotFoundText)}, nil
	}
	return []bot.Reply{markdown(planDetailsText(p), bot.PlanDetailsKeyboard(p.ID))}, nil
}

// buyPlan создает платеж и переводит в ожидание оплаты. Ожидание прежнего
// платежа заменяется новым.
func (m *Machine) buyPlan(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.planFromArg(ctx, t.ev.Arg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{alert(planNotFoundText)}, nil
	}
	pay, err := m.deps.Payments.CreateCharge(ctx, t.user, p)
	if err != nil {
		m.log.Error("failed to create charge", sl.UserID(t.user.ID), slog.Int64("plan_id", p.ID), sl.Err(err))
		return []bot.Reply{alert(chargeErrorText)}, nil
	}
	t.transition(awaitingPayment(pay.ExternalID, pay.ConfirmationURL))
	return []bot.Reply{markdown(payment.OfferText(p), bot.PaymentKeyboard(pay.ConfirmationURL))}, nil
}

// checkPayment сверяет ожидаемый платеж с провайдером.
func (m *Machine) checkPayment(ctx context.Context, t *turn) ([]bot.Reply, error) {
	if t.state.Kind != KindAwaitingPayment {
		return []bot.Reply{alert(noPendingText)}, nil
	}
	res, err := m.deps.Payments.CheckPayment(ctx, t.user.ID, t.state.PaymentRef)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		t.transition(idle())
		return []bot.Reply{alert(noPendingText)}, nil
	}
	if err != nil {
		return nil, err
	}
	switch res {
	case payment.ResultPending:
		return []bot.Reply{alert(paymentPendingText)}, nil
	case payment.ResultCancelled:
		t.transition(idle())
		return []bot.Reply{{Text: paymentFailedText, Keyboard: bot.SubscriptionKeyboard(false)}}, nil
	default:
		t.transition(idle())
		return []bot.Reply{alert(paymentDoneText)}, nil
	}
}

func (m *Machine) cancelPayment(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	return []bot.Reply{bot.Text(paymentCanceledText)}, nil
}

func (m *Machine) awaitingPaymentInput(_ context.Context, t *turn) ([]bot.Reply, error) {
	return []bot.Reply{{Text: awaitingPaymentText, Keyboard: bot.PaymentKeyboard(t.state.PaymentURL)}}, nil
}

func (m *Machine) askCancelSubscription(_ context.Context, _ *turn) ([]bot.Reply, error) {
	kb := bot.ConfirmationKeyboard(bot.ActionConfirmSubCancel, bot.ActionAbortSubCancel)
	return []bot.Reply{{Text: subCancelAskText, Keyboard: kb}}, nil
}

// confirmCancelSubscription отменяет подписку. Уже отмененная подписка
// считается успешно отмененной.
func (m *Machine) confirmCancelSubscription(ctx context.Context, t *turn) ([]bot.Reply, error) {
	done := []bot.Reply{{Text: subCancelledText, Keyboard: bot.SubscriptionKeyboard(false)}}

	sub, err := m.deps.Entitlements.GetActive(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		info, err := m.deps.Entitlements.Info(ctx, t.user.ID)
		if err != nil {
			return nil, err
		}
		if info.HasSubscription && info.Status == models.StatusCancelled {
			return done, nil
		}
		return []bot.Reply{alert(noActiveSubText)}, nil
	}

	err = m.deps.Entitlements.Cancel(ctx, sub)
	if errors.Is(err, entitlement.ErrNotActive) {
		return []bot.Reply{alert(noActiveSubText)}, nil
	}
	if err != nil {
		return nil, err
	}
	return done, nil
}

func (m *Machine) abortCancelSubscription(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{{Text: subCancelAbortText, Keyboard: bot.SubscriptionKeyboard(true)}}, nil
}
