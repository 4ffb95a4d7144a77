package orders

import (
	"encoding/json"
	"strings"
	"time"
)

type Order struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	UserID      *string     `json:"userId"` // nil until a staff member claims the order
	Information Information `json:"information"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ComponentSelection is one customised sub-component row inside an order; these
// rows drive inventory deduction.
type ComponentSelection struct {
	ProductCustomID string  `json:"productCustomId"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	TotalPrice      float64 `json:"totalPrice"`
}

// FormValue is a customer-entered background form field.
type FormValue struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type ContactInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Pricing struct {
	Subtotal float64 `json:"subtotal,omitempty"`
	Shipping float64 `json:"shipping,omitempty"`
	Discount float64 `json:"discount,omitempty"`
	Total    float64 `json:"total"`
}

type ItemPricing struct {
	ItemSubtotal float64 `json:"itemSubtotal"`
}

type StatusChange struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

type Metadata struct {
	// StatusHistory is append-only, newest first.
	StatusHistory []StatusChange `json:"statusHistory,omitempty"`
}

// BatchItem is one purchased item of a batch order. Customer, shipping and
// promotion data live on the order level.
type BatchItem struct {
	ItemIndex                int                             `json:"itemIndex"`
	Product                  json.RawMessage                 `json:"product,omitempty"`
	Variant                  json.RawMessage                 `json:"variant,omitempty"`
	SelectedOptions          json.RawMessage                 `json:"selectedOptions,omitempty"`
	CustomQuantities         map[string]int                  `json:"customQuantities,omitempty"`
	SelectedCategoryProducts map[string][]ComponentSelection `json:"selectedCategoryProducts,omitempty"`
	MultiItemCustomizations  map[string][]ComponentSelection `json:"multiItemCustomizations,omitempty"`
	Background               []FormValue                     `json:"background,omitempty"`
	Pricing                  ItemPricing                     `json:"pricing"`
}

// Information is the structured order document stored alongside the row.
// IsBatchOrder discriminates the two shapes: single-item orders use the flat
// fields, batch orders carry Items plus shared customer/shipping/promotion.
type Information struct {
	OrderCode string `json:"orderCode"`

	IsBatchOrder bool        `json:"isBatchOrder,omitempty"`
	ItemCount    int         `json:"itemCount,omitempty"`
	Items        []BatchItem `json:"items,omitempty"`

	Product                  json.RawMessage                 `json:"product,omitempty"`
	Variant                  json.RawMessage                 `json:"variant,omitempty"`
	SelectedOptions          json.RawMessage                 `json:"selectedOptions,omitempty"`
	CustomQuantities         map[string]int                  `json:"customQuantities,omitempty"`
	SelectedCategoryProducts map[string][]ComponentSelection `json:"selectedCategoryProducts,omitempty"`
	MultiItemCustomizations  map[string][]ComponentSelection `json:"multiItemCustomizations,omitempty"`
	Background               []FormValue                     `json:"background,omitempty"`

	ContactInfo  *ContactInfo    `json:"contactInfo,omitempty"`
	CustomerInfo *ContactInfo    `json:"customerInfo,omitempty"` // batch orders
	Shipping     json.RawMessage `json:"shipping,omitempty"`
	Promotion    json.RawMessage `json:"promotion,omitempty"`
	Pricing      Pricing         `json:"pricing"`
	Metadata     Metadata        `json:"metadata"`
}

// Contact returns whichever contact block the document carries.
func (inf *Information) Contact() ContactInfo {
	if inf.CustomerInfo != nil {
		return *inf.CustomerInfo
	}
	if inf.ContactInfo != nil {
		return *inf.ContactInfo
	}
	return ContactInfo{}
}

// ComponentQuantities aggregates the requested quantity per productCustomId
// across selectedCategoryProducts and multiItemCustomizations, and for batch
// orders across every item. One inventory operation is applied per distinct
// component, never per occurrence.
func (inf *Information) ComponentQuantities() map[string]int {
	totals := make(map[string]int)
	addAll := func(m map[string][]ComponentSelection) {
		for _, rows := range m {
			for _, row := range rows {
				if row.ProductCustomID == "" || row.Quantity <= 0 {
					continue
				}
				totals[row.ProductCustomID] += row.Quantity
			}
		}
	}
	if inf.IsBatchOrder {
		for i := range inf.Items {
			addAll(inf.Items[i].SelectedCategoryProducts)
			addAll(inf.Items[i].MultiItemCustomizations)
		}
		return totals
	}
	addAll(inf.SelectedCategoryProducts)
	addAll(inf.MultiItemCustomizations)
	return totals
}

// ExtractContact pulls name/phone/email out of background form values by
// matching known field titles.
func ExtractContact(background []FormValue) ContactInfo {
	var c ContactInfo
	for _, fv := range background {
		title := strings.ToLower(fv.Title)
		value := strings.TrimSpace(fv.Value)
		if value == "" {
			continue
		}
		switch {
		case c.Name == "" && strings.Contains(title, "name"):
			c.Name = value
		case c.Phone == "" && (strings.Contains(title, "phone") || strings.Contains(title, "tel")):
			c.Phone = value
		case c.Email == "" && strings.Contains(title, "email"):
			c.Email = value
		}
	}
	return c
}
