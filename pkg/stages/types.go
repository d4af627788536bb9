// Package stages implements the four pipeline activities: intake brief,
// option generation, edit, and shopping list. Each wraps one generator call
// with the activity contract: fault-injection poll, response-cache lookup,
// classified failure reporting, and asset writes under the project prefix.
package stages

// IntakeInput carries the intake conversation for brief extraction.
type IntakeInput struct {
	ProjectID    string        `json:"project_id"`
	Conversation []ConvMessage `json:"conversation"`
}

// ConvMessage is one user/assistant turn of the intake conversation.
type ConvMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Brief is the structured output of the intake stage.
type Brief struct {
	ProjectID    string   `json:"project_id"`
	RoomType     string   `json:"room_type"`
	Style        string   `json:"style"`
	BudgetCents  int64    `json:"budget_cents"`
	Requirements []string `json:"requirements"`
}

// GenerateInput requests one visual option for a brief. OptionIndex
// distinguishes the concurrent fan-out calls within one generation stage.
type GenerateInput struct {
	ProjectID   string `json:"project_id"`
	Brief       Brief  `json:"brief"`
	OptionIndex int    `json:"option_index"`
	Seed        int64  `json:"seed"`
}

// Option is one produced visual option. AssetKey points at the rendered
// image in object storage.
type Option struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	AssetKey  string `json:"asset_key"`
	Caption   string `json:"caption"`
}

// EditInput revises a previously selected option.
type EditInput struct {
	ProjectID   string `json:"project_id"`
	Option      Option `json:"option"`
	Instruction string `json:"instruction"`
}

// ShoppingInput requests a priced product list for the chosen option.
type ShoppingInput struct {
	ProjectID string `json:"project_id"`
	Option    Option `json:"option"`
	Brief     Brief  `json:"brief"`
}

// ShoppingItem is one purchasable product.
type ShoppingItem struct {
	Name       string `json:"name"`
	Vendor     string `json:"vendor"`
	PriceCents int64  `json:"price_cents"`
	URL        string `json:"url"`
}

// ShoppingList is the structured output of the shopping stage.
type ShoppingList struct {
	ProjectID  string         `json:"project_id"`
	Items      []ShoppingItem `json:"items"`
	TotalCents int64          `json:"total_cents"`
}
