package checkout

import "context"

// AutoSheet is a headless PaymentSheet: it confirms immediately with a fixed
// payment method. The CLI uses it against test-mode payment methods.
type AutoSheet struct {
	Method PaymentMethod
}

func (s AutoSheet) Present(ctx context.Context, cfg SheetConfig, confirm ConfirmHandler) SheetResult {
	if ctx.Err() != nil {
		return SheetResult{Status: SheetCanceled}
	}
	var secret string
	confirm(ctx, s.Method, func(r IntentResult) { secret = r.ClientSecret })
	if secret == "" {
		return SheetResult{Status: SheetFailed, Err: &ProviderError{Code: "Failed", Message: "the payment could not be confirmed"}}
	}
	return SheetResult{Status: SheetCompleted}
}
