package notion

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/pocketsync/internal/currency"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
)

// Property names of the transactions database.
const (
	propDescription   = "Description"
	propDate          = "Date"
	propAmount        = "Amount"
	propCurrency      = "Currency"
	propTransfer      = "Transfer"
	propTransactionID = "Transaction ID"
	propReceipt       = "Receipt"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

func plainText(rt []notionapi.RichText) string {
	var s string
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			s += r.PlainText
		case r.Text != nil:
			s += r.Text.Content
		}
	}
	return s
}

func notionDate(d civil.Date) *notionapi.Date {
	nd := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
	return &nd
}

// TransactionToProperties converts a transaction to Notion page properties.
// The correlation token goes into the Transaction ID column.
func TransactionToProperties(req providers.UploadRequest, t *domain.Transaction) notionapi.Properties {
	code := req.Origin.Currency
	if code == "" {
		code = req.Account.Currency
	}

	amount, _ := currency.Decimal(t.Amount, code).Float64()
	props := notionapi.Properties{
		propDescription: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(t.Payee),
		},
		propDate: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: notionDate(t.Date)},
		},
		propAmount: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: amount,
		},
		propTransfer: notionapi.CheckboxProperty{
			Type:     notionapi.PropertyTypeCheckbox,
			Checkbox: t.IsTransfer,
		},
		propTransactionID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(req.Origin.Token(t.ExternalRef)),
		},
	}

	if code != "" {
		props[propCurrency] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: code},
		}
	}

	if len(t.Attachments) > 0 {
		props[propReceipt] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  t.Attachments[0].URL,
		}
	}

	return props
}

// row is the decoded form of a transactions database page.
type row struct {
	Payee         string
	Date          *time.Time
	Amount        float64
	HasAmount     bool
	Currency      string
	IsTransfer    bool
	TransactionID string
	Receipt       string
}

func pageToRow(page notionapi.Page) row {
	var r row
	for name, prop := range page.Properties {
		switch p := prop.(type) {
		case *notionapi.TitleProperty:
			if name == propDescription {
				r.Payee = plainText(p.Title)
			}
		case *notionapi.DateProperty:
			if name == propDate && p.Date != nil && p.Date.Start != nil {
				t := time.Time(*p.Date.Start)
				r.Date = &t
			}
		case *notionapi.NumberProperty:
			if name == propAmount {
				r.Amount, r.HasAmount = p.Number, true
			}
		case *notionapi.SelectProperty:
			if name == propCurrency {
				r.Currency = p.Select.Name
			}
		case *notionapi.CheckboxProperty:
			if name == propTransfer {
				r.IsTransfer = p.Checkbox
			}
		case *notionapi.RichTextProperty:
			if name == propTransactionID {
				r.TransactionID = plainText(p.RichText)
			}
		case *notionapi.URLProperty:
			if name == propReceipt {
				r.Receipt = p.URL
			}
		}
	}
	return r
}
