// Package ocr talks to the receipt OCR service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

// ErrExtractionFailed wraps every failure to get a usable receipt.
var ErrExtractionFailed = errors.New("receipt extraction failed")

// Client calls the OCR service. Requests are not retried; the caller
// falls back to manual entry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ReceiptItem is one parsed receipt line, amounts in minor units.
type ReceiptItem struct {
	Name      string
	Quantity  int64
	UnitPrice int64
	Total     int64
}

// Receipt is the parsed result, amounts in minor units.
type Receipt struct {
	MerchantName string
	Items        []ReceiptItem
	Subtotal     int64
	Tax          int64
	Total        int64
	Date         string
	OCRText      string
}

// ExpenseItems converts the parsed lines to unassigned expense items.
func (r *Receipt) ExpenseItems(currency string) []models.ExpenseItem {
	items := make([]models.ExpenseItem, len(r.Items))
	for i, line := range r.Items {
		items[i] = models.ExpenseItem{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: money.New(line.UnitPrice, currency),
			Total:     money.New(line.Total, currency),
		}
	}
	return items
}

type parseResponse struct {
	Success    bool   `json:"success"`
	OCRText    string `json:"ocr_text"`
	ParsedData struct {
		MerchantName string `json:"merchant_name"`
		Items        []struct {
			Name     string              `json:"name"`
			Quantity decimal.NullDecimal `json:"quantity"`
			Price    decimal.Decimal     `json:"price"`
			Total    decimal.Decimal     `json:"total"`
		} `json:"items"`
		Subtotal decimal.Decimal `json:"subtotal"`
		Tax      decimal.Decimal `json:"tax"`
		Total    decimal.Decimal `json:"total"`
		Date     string          `json:"date"`
	} `json:"parsed_data"`
}

// ParseReceipt uploads image as multipart field "file" to /ocr/parse.
func (c *Client) ParseReceipt(ctx context.Context, filename string, image []byte) (*Receipt, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/parse", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrExtractionFailed, err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("%w: service reported failure", ErrExtractionFailed)
	}

	return convert(&parsed)
}

func convert(p *parseResponse) (*Receipt, error) {
	d := &p.ParsedData
	r := &Receipt{MerchantName: d.MerchantName, Date: d.Date, OCRText: p.OCRText}

	var err error
	if r.Subtotal, err = amount(d.Subtotal); err != nil {
		return nil, fmt.Errorf("%w: subtotal: %v", ErrExtractionFailed, err)
	}
	if r.Tax, err = amount(d.Tax); err != nil {
		return nil, fmt.Errorf("%w: tax: %v", ErrExtractionFailed, err)
	}
	if r.Total, err = amount(d.Total); err != nil {
		return nil, fmt.Errorf("%w: total: %v", ErrExtractionFailed, err)
	}

	for _, line := range d.Items {
		item := ReceiptItem{Name: strings.TrimSpace(line.Name)}
		if item.Quantity, err = quantity(line.Quantity); err != nil {
			return nil, fmt.Errorf("%w: item %q quantity: %v", ErrExtractionFailed, line.Name, err)
		}
		if item.UnitPrice, err = amount(line.Price); err != nil {
			return nil, fmt.Errorf("%w: item %q price: %v", ErrExtractionFailed, line.Name, err)
		}
		if item.Total, err = amount(line.Total); err != nil {
			return nil, fmt.Errorf("%w: item %q total: %v", ErrExtractionFailed, line.Name, err)
		}
		if item.Total == 0 && item.UnitPrice != 0 {
			item.Total = item.UnitPrice * item.Quantity
		}
		r.Items = append(r.Items, item)
	}
	return r, nil
}

// amount converts a decimal amount to minor units. Absent is zero.
func amount(d decimal.Decimal) (int64, error) {
	return money.Hundredths(d)
}

// quantity reads a unit count, rounding fractional values and defaulting to 1.
func quantity(n decimal.NullDecimal) (int64, error) {
	if !n.Valid {
		return 1, nil
	}
	q := n.Decimal.Round(0)
	if !q.IsInteger() || q.GreaterThan(decimal.NewFromInt(1_000_000)) {
		return 0, money.ErrInvalidAmount
	}
	return max(q.IntPart(), 1), nil
}
