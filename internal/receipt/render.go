package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/campusnest/api/internal/domain"
)

// Format selects the rendered representation.
type Format string

const (
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a query value onto a Format. Empty selects HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatText, "txt":
		return FormatText, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("receipt: unsupported format %q", value)
}

// Document is a rendered receipt ready to be written or archived.
type Document struct {
	ContentType string
	Body        []byte
}

// Renderer formats receipts for one display currency.
type Renderer struct {
	unit     currency.Unit
	printer  *message.Printer
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	strip    *bluemonday.Policy
}

// NewRenderer builds a renderer for the ISO 4217 currency code (LKR when empty).
func NewRenderer(currencyCode string) (*Renderer, error) {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = "LKR"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("receipt: currency %q: %w", code, err)
	}
	return &Renderer{
		unit:     unit,
		printer:  message.NewPrinter(language.English),
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
		policy:   bluemonday.UGCPolicy(),
		strip:    bluemonday.StrictPolicy(),
	}, nil
}

// Money renders an amount such as "LKR 1,350.00".
func (r *Renderer) Money(amount decimal.Decimal) string {
	return r.printer.Sprint(currency.ISO(r.unit.Amount(amount.Round(2).InexactFloat64())))
}

// Render produces the document in the requested format.
func (r *Renderer) Render(rc Receipt, format Format) (Document, error) {
	switch format {
	case FormatHTML, "":
		body, err := r.HTML(rc)
		if err != nil {
			return Document{}, err
		}
		return Document{ContentType: "text/html; charset=utf-8", Body: body}, nil
	case FormatText:
		return Document{ContentType: "text/plain; charset=utf-8", Body: []byte(r.Text(rc))}, nil
	case FormatMarkdown:
		return Document{ContentType: "text/markdown; charset=utf-8", Body: []byte(r.Markdown(rc))}, nil
	case FormatJSON:
		body, err := json.Marshal(r.payload(rc))
		if err != nil {
			return Document{}, fmt.Errorf("receipt: encode json: %w", err)
		}
		return Document{ContentType: "application/json", Body: body}, nil
	}
	return Document{}, fmt.Errorf("receipt: unsupported format %q", format)
}

// Markdown renders the receipt as Markdown. Customer supplied text is stripped of markup.
func (r *Renderer) Markdown(rc Receipt) string {
	var b strings.Builder
	title := "Order receipt"
	if rc.Kind == KindBooking {
		title = "Booking receipt"
	}
	fmt.Fprintf(&b, "# %s %s\n\n", title, r.clean(rc.Number))
	if rc.Merchant != "" {
		fmt.Fprintf(&b, "**%s**\n\n", r.clean(rc.Merchant))
	}
	fmt.Fprintf(&b, "- Issued: %s\n", rc.IssuedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "- Status: %s\n", rc.Status)
	fmt.Fprintf(&b, "- Customer: %s (%s)\n", r.clean(rc.CustomerName), r.clean(rc.CustomerPhone))
	if rc.OrderType != "" {
		fmt.Fprintf(&b, "- Order type: %s\n", rc.OrderType)
	}
	if rc.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", r.clean(rc.Address))
	}
	if rc.TableNumber != "" {
		fmt.Fprintf(&b, "- Table: %s\n", r.clean(rc.TableNumber))
	}
	if !rc.CheckInDate.IsZero() {
		fmt.Fprintf(&b, "- Check-in: %s\n", rc.CheckInDate.Format("2006-01-02"))
	}
	if rc.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", r.clean(rc.Notes))
	}

	b.WriteString("\n| Item | Qty | Unit price | Total |\n|---|---:|---:|---:|\n")
	for _, line := range rc.Lines {
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", r.clean(line.Name), line.Quantity, r.Money(line.UnitPrice), r.Money(line.Total))
	}
	b.WriteString("\n")
	if rc.Kind == KindOrder {
		fmt.Fprintf(&b, "Subtotal: %s  \n", r.Money(rc.Subtotal))
		fmt.Fprintf(&b, "Delivery fee: %s  \n", r.Money(rc.DeliveryFee))
	}
	fmt.Fprintf(&b, "**Total: %s**\n\n", r.Money(rc.Total))

	if !rc.Payment.Paid {
		fmt.Fprintf(&b, "Payment pending: %s due by %s\n", r.Money(rc.Payment.Amount), orDash(rc.Payment.Method))
		return b.String()
	}
	fmt.Fprintf(&b, "Paid %s by %s", r.Money(rc.Payment.Amount), orDash(rc.Payment.Method))
	if rc.Payment.TransactionID != "" {
		fmt.Fprintf(&b, " (transaction %s)", r.clean(rc.Payment.TransactionID))
	}
	fmt.Fprintf(&b, " on %s\n", rc.Payment.PaidAt.Format(time.RFC1123))
	return b.String()
}

// HTML renders the Markdown through goldmark and sanitises the result.
func (r *Renderer) HTML(rc Receipt) ([]byte, error) {
	var body bytes.Buffer
	if err := r.markdown.Convert([]byte(r.Markdown(rc)), &body); err != nil {
		return nil, fmt.Errorf("receipt: render markdown: %w", err)
	}
	var out bytes.Buffer
	fmt.Fprintf(&out, "<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>Receipt %s</title></head><body>\n", html.EscapeString(rc.Number))
	out.Write(r.policy.SanitizeBytes(body.Bytes()))
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

// Text renders a fixed-width plain text receipt.
func (r *Renderer) Text(rc Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RECEIPT %s\n", rc.Number)
	if rc.Merchant != "" {
		fmt.Fprintf(&b, "%s\n", r.clean(rc.Merchant))
	}
	fmt.Fprintf(&b, "%s\n", rc.IssuedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Customer: %s %s\n", r.clean(rc.CustomerName), r.clean(rc.CustomerPhone))
	b.WriteString(strings.Repeat("-", 48) + "\n")
	for _, line := range rc.Lines {
		fmt.Fprintf(&b, "%-28s %3d %15s\n", truncate(r.clean(line.Name), 28), line.Quantity, r.Money(line.Total))
	}
	b.WriteString(strings.Repeat("-", 48) + "\n")
	if rc.Kind == KindOrder {
		fmt.Fprintf(&b, "%-32s %15s\n", "Subtotal", r.Money(rc.Subtotal))
		fmt.Fprintf(&b, "%-32s %15s\n", "Delivery fee", r.Money(rc.DeliveryFee))
	}
	fmt.Fprintf(&b, "%-32s %15s\n", "TOTAL", r.Money(rc.Total))
	if !rc.Payment.Paid {
		fmt.Fprintf(&b, "Payment due: %s %s\n", orDash(rc.Payment.Method), r.Money(rc.Payment.Amount))
		return b.String()
	}
	fmt.Fprintf(&b, "Paid: %s %s %s\n", orDash(rc.Payment.Method), r.Money(rc.Payment.Amount), rc.Payment.TransactionID)
	return b.String()
}

type linePayload struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

type paymentPayload struct {
	Method        string    `json:"method,omitempty"`
	Amount        string    `json:"amount"`
	TransactionID string     `json:"transactionId,omitempty"`
	Paid          bool       `json:"paid"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

type receiptPayload struct {
	Kind          Kind           `json:"kind"`
	Number        string         `json:"number"`
	Status        string         `json:"status"`
	IssuedAt      time.Time      `json:"issuedAt"`
	Merchant      string         `json:"merchant,omitempty"`
	CustomerName  string         `json:"customerName"`
	CustomerPhone string         `json:"customerPhone,omitempty"`
	CustomerEmail string         `json:"customerEmail,omitempty"`
	Address       string         `json:"address,omitempty"`
	OrderType     string         `json:"orderType,omitempty"`
	PaymentType   string         `json:"paymentType,omitempty"`
	CheckInDate   *time.Time     `json:"checkInDate,omitempty"`
	Currency      string         `json:"currency"`
	Lines         []linePayload  `json:"lines"`
	Subtotal      string         `json:"subtotal"`
	DeliveryFee   string         `json:"deliveryFee"`
	Total         string         `json:"total"`
	Payment       paymentPayload `json:"payment"`
}

func (r *Renderer) payload(rc Receipt) receiptPayload {
	out := receiptPayload{
		Kind:          rc.Kind,
		Number:        rc.Number,
		Status:        rc.Status,
		IssuedAt:      rc.IssuedAt,
		Merchant:      rc.Merchant,
		CustomerName:  r.clean(rc.CustomerName),
		CustomerPhone: rc.CustomerPhone,
		CustomerEmail: rc.CustomerEmail,
		Address:       r.clean(rc.Address),
		OrderType:     rc.OrderType,
		PaymentType:   rc.PaymentType,
		Currency:      r.unit.String(),
		Lines:         make([]linePayload, 0, len(rc.Lines)),
		Subtotal:      domain.FormatAmount(rc.Subtotal),
		DeliveryFee:   domain.FormatAmount(rc.DeliveryFee),
		Total:         domain.FormatAmount(rc.Total),
		Payment: paymentPayload{
			Method:        rc.Payment.Method,
			Amount:        domain.FormatAmount(rc.Payment.Amount),
			TransactionID: rc.Payment.TransactionID,
			Paid:          rc.Payment.Paid,
		},
	}
	if rc.Payment.Paid {
		paidAt := rc.Payment.PaidAt
		out.Payment.PaidAt = &paidAt
	}
	if !rc.CheckInDate.IsZero() {
		checkIn := rc.CheckInDate
		out.CheckInDate = &checkIn
	}
	for _, line := range rc.Lines {
		out.Lines = append(out.Lines, linePayload{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: domain.FormatAmount(line.UnitPrice),
			Total:     domain.FormatAmount(line.Total),
		})
	}
	return out
}

// clean strips markup and table separators from free text.
func (r *Renderer) clean(value string) string {
	value = html.UnescapeString(r.strip.Sanitize(value))
	value = strings.ReplaceAll(value, "|", "/")
	return strings.Join(strings.Fields(value), " ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
