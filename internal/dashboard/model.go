package dashboard

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/internal/gateway"
	"github.com/affordindia/affordindia-sub004/models"
)

// RefreshMsg asks the model to re-render from the gateway. It is sent by the
// gateway notify hook.
type RefreshMsg struct{}

type opDoneMsg struct {
	action string
	id     string
	err    error
}

var statusKeys = map[string]models.OrderStatus{
	"p": models.OrderProcessing,
	"s": models.OrderShipped,
	"d": models.OrderDelivered,
	"c": models.OrderCancelled,
}

type Model struct {
	ctx     context.Context
	gw      *gateway.Gateway
	cursor  int
	confirm string
	status  string
	loading bool
}

func New(ctx context.Context, gw *gateway.Gateway) Model {
	return Model{ctx: ctx, gw: gw, status: "Loading orders...", loading: true}
}

func (m Model) Init() tea.Cmd {
	return m.fetch()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case RefreshMsg:
		m.clampCursor()
	case opDoneMsg:
		if msg.action == "refresh" {
			m.loading = false
		}
		m.status = describe(msg)
		m.clampCursor()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirm != "" {
		id := m.confirm
		m.confirm = ""
		if key == "y" {
			m.status = fmt.Sprintf("Deleting %s...", id)
			return m, m.run("delete", id, func(ctx context.Context) error { return m.gw.DeleteOrder(ctx, id) })
		}
		m.status = "Delete cancelled"
		return m, nil
	}

	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.gw.Orders())-1 {
			m.cursor++
		}
	case "r":
		m.loading = true
		m.status = "Refreshing..."
		return m, m.fetch()
	case "p", "s", "d", "c":
		id, ok := m.selected()
		if !ok {
			return m, nil
		}
		status := statusKeys[key]
		return m, m.run("status", id, func(ctx context.Context) error { return m.gw.ChangeStatus(ctx, id, status) })
	case "m":
		id, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.run("payment", id, func(ctx context.Context) error { return m.gw.ConfirmPayment(ctx, id, models.PaymentPaid) })
	case "x":
		if id, ok := m.selected(); ok {
			m.confirm = id
			m.status = fmt.Sprintf("Delete order %s? This cannot be undone. (y/n)", id)
		}
	}
	return m, nil
}

func (m Model) fetch() tea.Cmd {
	return m.run("refresh", "", m.gw.FetchAll)
}

func (m Model) run(action, id string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{action: action, id: id, err: fn(ctx)}
	}
}

func (m Model) selected() (string, bool) {
	orders := m.gw.Orders()
	if m.cursor < 0 || m.cursor >= len(orders) {
		return "", false
	}
	return orders[m.cursor].ID, true
}

func (m *Model) clampCursor() {
	n := len(m.gw.Orders())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func describe(msg opDoneMsg) string {
	if msg.err != nil {
		if msg.id != "" {
			return fmt.Sprintf("%s %s failed: %s", msg.action, msg.id, apperr.Message(msg.err))
		}
		return fmt.Sprintf("%s failed", msg.action)
	}
	switch msg.action {
	case "refresh":
		return "Orders up to date"
	case "delete":
		return fmt.Sprintf("Order %s deleted", msg.id)
	default:
		return fmt.Sprintf("Order %s updated", msg.id)
	}
}

func (m Model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "Handcraft orders")
	fmt.Fprintln(b, "")

	if err := m.gw.Err(); err != nil {
		fmt.Fprintf(b, "! %s\n\n", apperr.Message(err))
	}

	orders := m.gw.Orders()
	if len(orders) == 0 {
		if m.loading {
			fmt.Fprintln(b, "  loading...")
		} else {
			fmt.Fprintln(b, "  no orders")
		}
	}

	opErrors := m.gw.OperationErrors()
	for i, o := range orders {
		marker := " "
		if i == m.cursor {
			marker = ">"
		}
		pending := " "
		if m.gw.Pending(o.ID) {
			pending = "~"
		}
		fmt.Fprintf(b, " %s%s %-12s %-18s %-24s %3d  %10s  %s\n",
			marker, pending, o.ID, o.CustomerName, o.Email, o.ItemsCount, o.Total.StringFixed(2), o.Display.Label)
		if err, ok := opErrors[o.ID]; ok {
			fmt.Fprintf(b, "      %s\n", apperr.Message(err))
		}
	}

	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select, r refresh, p/s/d/c processing/shipped/delivered/cancelled, m mark paid, x delete, q quit")
	return b.String()
}
