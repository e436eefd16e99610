package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/service"
)

// WalletHandler serves the caller's balance.
type WalletHandler struct {
	Wallet *service.Wallet
}

func NewWalletHandler(w *service.Wallet) *WalletHandler {
	return &WalletHandler{Wallet: w}
}

type amountReq struct {
	Amount int `json:"amount"`
}

// Balance handles GET /v1/me/balance.
func (h *WalletHandler) Balance(c echo.Context) error {
	uid := getUserID(c)
	b, err := h.Wallet.Balance(c.Request().Context(), uid)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "balance": b})
}

// Deposit handles POST /v1/me/deposit.
func (h *WalletHandler) Deposit(c echo.Context) error {
	return h.move(c, h.Wallet.Deposit)
}

// Withdraw handles POST /v1/me/withdraw. The balance never goes negative.
func (h *WalletHandler) Withdraw(c echo.Context) error {
	return h.move(c, h.Wallet.Withdraw)
}

func (h *WalletHandler) move(c echo.Context, op func(ctx context.Context, userID string, amount int) (int, error)) error {
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	uid := getUserID(c)
	b, err := op(c.Request().Context(), uid, req.Amount)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "balance": b})
}
