package homebox

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Location is a location summary from the list endpoint.
type Location struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemCount   int    `json:"itemCount,omitempty"`
}

// LocationDetail is a single location with its parent and children.
type LocationDetail struct {
	Location
	Parent   *Location  `json:"parent,omitempty"`
	Children []Location `json:"children,omitempty"`
}

// TreeNode is one entry of the location tree.
type TreeNode struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Children []TreeNode `json:"children,omitempty"`
}

// Label is an inventory tag.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ItemRef identifies a related item.
type ItemRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemSummary is a search result entry.
type ItemSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	Location *Location `json:"location,omitempty"`
}

// Item is the full item representation.
type Item struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Quantity      int       `json:"quantity"`
	Location      *Location `json:"location,omitempty"`
	Labels        []Label   `json:"labels,omitempty"`
	Parent        *ItemRef  `json:"parent,omitempty"`
	Manufacturer  string    `json:"manufacturer"`
	ModelNumber   string    `json:"modelNumber"`
	SerialNumber  string    `json:"serialNumber"`
	PurchasePrice Price     `json:"purchasePrice"`
	PurchaseFrom  string    `json:"purchaseFrom"`
	Notes         string    `json:"notes"`
}

// ItemCreate is the payload accepted by the create endpoint. Extended
// fields are not accepted here and must be applied with an update.
type ItemCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Quantity    int      `json:"quantity"`
	LocationID  string   `json:"locationId"`
	LabelIDs    []string `json:"labelIds,omitempty"`
	ParentID    string   `json:"parentId,omitempty"`
}

// ItemUpdate is the full-replacement payload for the update endpoint.
type ItemUpdate struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Quantity      int      `json:"quantity"`
	LocationID    string   `json:"locationId,omitempty"`
	LabelIDs      []string `json:"labelIds"`
	ParentID      string   `json:"parentId,omitempty"`
	Manufacturer  string   `json:"manufacturer,omitempty"`
	ModelNumber   string   `json:"modelNumber,omitempty"`
	SerialNumber  string   `json:"serialNumber,omitempty"`
	PurchasePrice float64  `json:"purchasePrice,omitempty"`
	PurchaseFrom  string   `json:"purchaseFrom,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Price accepts purchase prices encoded as numbers or numeric strings.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*p = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*p = Price(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = Price(f)
	return nil
}

type loginResponse struct {
	Token       string `json:"token"`
	JWT         string `json:"jwt"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
}

type searchResponse struct {
	Items []ItemSummary `json:"items"`
	Total int           `json:"total"`
}
