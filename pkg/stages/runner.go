package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/faultinject"
	"github.com/restage-ai/restage/pkg/genai"
	"github.com/restage-ai/restage/pkg/objectstore"
	"github.com/restage-ai/restage/pkg/respcache"
)

// Runner executes the pipeline activities against a generator client.
// Activities are pure functions of their declared inputs with respect to
// caching: identical inputs resolve to identical cache entries.
type Runner struct {
	gen     genai.Client
	cache   *respcache.Cache
	objects objectstore.Store
	faults  faultinject.Injector
	model   string
	logger  *slog.Logger
}

// NewRunner wires a Runner. faults may be nil (no injection, the production
// default); cache may be disabled.
func NewRunner(gen genai.Client, cache *respcache.Cache, objects objectstore.Store, faults faultinject.Injector, model string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gen: gen, cache: cache, objects: objects, faults: faults, model: model, logger: logger}
}

// checkInjected consumes the one-shot fault flag if armed.
func (r *Runner) checkInjected(ctx context.Context, name string) error {
	if r.faults == nil {
		return nil
	}
	won, err := r.faults.Consume(ctx)
	if err != nil {
		return nil
	}
	if won {
		r.logger.Warn("consumed injected failure", "activity", name)
		return activity.Injected()
	}
	return nil
}

// cacheParts builds the ordered cache key for an activity call: model name
// first, then the canonicalized input.
func (r *Runner) cacheParts(in any) ([]string, error) {
	part, err := respcache.JSONPart(in)
	if err != nil {
		return nil, activity.ClientInput("uncacheable input: " + err.Error())
	}
	return []string{r.model, part}, nil
}

// IntakeBrief distills the intake conversation into a structured brief.
func (r *Runner) IntakeBrief(ctx context.Context, in IntakeInput) (*Brief, error) {
	if err := r.checkInjected(ctx, "intake_brief"); err != nil {
		return nil, err
	}
	parts, err := r.cacheParts(in)
	if err != nil {
		return nil, err
	}
	var cached Brief
	if r.cache.GetJSON("intake", parts, &cached) {
		return &cached, nil
	}

	msgs := make([]genai.Message, 0, len(in.Conversation)+1)
	msgs = append(msgs, genai.Message{Role: "system", Content: "Extract a structured redesign brief from the conversation. Respond with JSON only."})
	for _, m := range in.Conversation {
		msgs = append(msgs, genai.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := r.gen.Generate(ctx, &genai.Request{Model: r.model, Messages: msgs})
	if err != nil {
		return nil, activity.Classify(err)
	}
	text, ok := resp.Text()
	if !ok {
		return nil, activity.Integrity("intake response has no text block")
	}
	var brief Brief
	if err := json.Unmarshal([]byte(text), &brief); err != nil {
		return nil, activity.Integrity("intake brief undecodable: " + err.Error())
	}
	brief.ProjectID = in.ProjectID

	r.cache.SetJSON("intake", parts, brief)
	return &brief, nil
}

// GenerateOption produces one visual option and stores its render under the
// project's asset prefix. Safe to call concurrently with other option
// indexes for the same project.
func (r *Runner) GenerateOption(ctx context.Context, in GenerateInput) (*Option, error) {
	if err := r.checkInjected(ctx, "generate_option"); err != nil {
		return nil, err
	}
	parts, err := r.cacheParts(in)
	if err != nil {
		return nil, err
	}
	var cached Option
	if r.cache.GetJSON("generate", parts, &cached) {
		return &cached, nil
	}

	prompt := fmt.Sprintf("Render redesign option %d for a %s in %s style.",
		in.OptionIndex, in.Brief.RoomType, in.Brief.Style)
	resp, err := r.gen.Generate(ctx, &genai.Request{
		Model:    r.model,
		Messages: []genai.Message{{Role: "user", Content: prompt}},
		Seed:     in.Seed,
	})
	if err != nil {
		return nil, activity.Classify(err)
	}
	img, ok := resp.Image()
	if !ok {
		return nil, activity.Integrity("generation response has no image block")
	}
	caption, _ := resp.Text()

	opt := Option{
		ID:        uuid.New().String(),
		ProjectID: in.ProjectID,
		Caption:   caption,
	}
	opt.AssetKey = objectstore.ProjectPrefix(in.ProjectID) + "options/" + opt.ID + ".png"
	if err := r.objects.Put(ctx, opt.AssetKey, img.Data, img.MediaType); err != nil {
		return nil, activity.Classify(err)
	}

	r.cache.SetBytes("renders", parts, "png", img.Data)
	r.cache.SetJSON("generate", parts, opt)
	return &opt, nil
}

// EditOption revises a chosen option per the user's instruction.
func (r *Runner) EditOption(ctx context.Context, in EditInput) (*Option, error) {
	if err := r.checkInjected(ctx, "edit_option"); err != nil {
		return nil, err
	}
	parts, err := r.cacheParts(in)
	if err != nil {
		return nil, err
	}
	var cached Option
	if r.cache.GetJSON("edit", parts, &cached) {
		return &cached, nil
	}

	prompt := fmt.Sprintf("Revise the render at %s: %s", in.Option.AssetKey, in.Instruction)
	resp, err := r.gen.Generate(ctx, &genai.Request{
		Model:    r.model,
		Messages: []genai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, activity.Classify(err)
	}
	img, ok := resp.Image()
	if !ok {
		return nil, activity.Integrity("edit response has no image block")
	}
	caption, _ := resp.Text()

	opt := Option{
		ID:        uuid.New().String(),
		ProjectID: in.ProjectID,
		Caption:   caption,
	}
	opt.AssetKey = objectstore.ProjectPrefix(in.ProjectID) + "options/" + opt.ID + ".png"
	if err := r.objects.Put(ctx, opt.AssetKey, img.Data, img.MediaType); err != nil {
		return nil, activity.Classify(err)
	}

	r.cache.SetJSON("edit", parts, opt)
	return &opt, nil
}

// ShoppingList prices the products visible in the chosen option.
func (r *Runner) ShoppingList(ctx context.Context, in ShoppingInput) (*ShoppingList, error) {
	if err := r.checkInjected(ctx, "shopping_list"); err != nil {
		return nil, err
	}
	parts, err := r.cacheParts(in)
	if err != nil {
		return nil, err
	}
	var cached ShoppingList
	if r.cache.GetJSON("shopping", parts, &cached) {
		return &cached, nil
	}

	prompt := fmt.Sprintf("Produce a priced product list for the render at %s within budget %d cents. Respond with JSON only.",
		in.Option.AssetKey, in.Brief.BudgetCents)
	resp, err := r.gen.Generate(ctx, &genai.Request{
		Model:    r.model,
		Messages: []genai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, activity.Classify(err)
	}
	text, ok := resp.Text()
	if !ok {
		return nil, activity.Integrity("shopping response has no text block")
	}
	var list ShoppingList
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return nil, activity.Integrity("shopping list undecodable: " + err.Error())
	}
	list.ProjectID = in.ProjectID
	var total int64
	for _, item := range list.Items {
		total += item.PriceCents
	}
	list.TotalCents = total

	listKey := objectstore.ProjectPrefix(in.ProjectID) + "shopping.json"
	if raw, err := json.Marshal(list); err == nil {
		if err := r.objects.Put(ctx, listKey, raw, "application/json"); err != nil {
			return nil, activity.Classify(err)
		}
	}

	r.cache.SetJSON("shopping", parts, list)
	return &list, nil
}
