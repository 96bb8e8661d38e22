package outline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/model"
	"github.com/ppiankov/currentevents/internal/segment"
	"golang.org/x/net/html"
)

// dayParser holds the per-day counters that number topics and events.
type dayParser struct {
	parser    *Parser
	sourceURL string
	date      time.Time
	topics    int
	events    int
}

// frame is one pending list item together with the topics it belongs to.
type frame struct {
	parents []*model.Topic
	li      *html.Node
}

// errSampleReached stops a day once the sample size is reached.
var errSampleReached = errors.New("sample reached")

func (d *dayParser) run(ctx context.Context, desc *html.Node) error {
	for _, heading := range extract.ChildElements(desc) {
		if !isInitialTopic(heading) {
			continue
		}
		if err := d.section(ctx, heading); err != nil {
			if errors.Is(err, errSampleReached) {
				return nil
			}
			return err
		}
	}
	return nil
}

// isInitialTopic matches the two category heading forms:
// <p><b>Health and environment</b></p> and
// <div class="current-events-content-heading">.
func isInitialTopic(n *html.Node) bool {
	return (extract.IsElement(n, "p") && len(n.Attr) == 0) ||
		(extract.IsElement(n, "div") && extract.HasClass(n, "current-events-content-heading"))
}

// section stores the category topic of heading and walks the list that
// follows it with an explicit stack.
func (d *dayParser) section(ctx context.Context, heading *html.Node) error {
	text, _, err := extract.TextAndLinks(heading, 0)
	if err != nil {
		return err
	}
	label := strings.TrimSpace(text)
	root := &model.Topic{
		Raw:       label,
		Label:     label,
		Date:      d.date,
		Index:     d.topics,
		SourceURL: d.sourceURL,
	}
	if err := d.storeTopic(ctx, root); err != nil {
		return err
	}

	list := heading
	for list = extract.NextElementSibling(list); list != nil; list = extract.NextElementSibling(list) {
		if extract.IsElement(list, "ul") {
			break
		}
	}
	if list == nil {
		return nil
	}

	var stack []frame
	stack = pushItems(stack, []*model.Topic{root}, list)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nested := extract.FindFirst(f.li, extract.ElementTag("ul"))
		if nested == nil {
			if err := d.event(ctx, f.parents, f.li); err != nil {
				return err
			}
			continue
		}

		topics, err := d.topicGroup(ctx, f.parents, f.li, nested)
		if err != nil {
			return err
		}
		stack = pushItems(stack, topics, nested)
	}
	return nil
}

// pushItems pushes the direct li children of list in reverse so they pop in
// document order.
func pushItems(stack []frame, parents []*model.Topic, list *html.Node) []frame {
	items := extract.ChildElements(list)
	for i := len(items) - 1; i >= 0; i-- {
		if extract.IsElement(items[i], "li") {
			stack = append(stack, frame{parents: parents, li: items[i]})
		}
	}
	return stack
}

func (d *dayParser) storeTopic(ctx context.Context, t *model.Topic) error {
	d.topics++
	d.parser.recorder.RecordAnalytic(analytics.Topics, 1)
	if d.parser.sink == nil {
		return nil
	}
	if err := d.parser.sink.StoreTopic(ctx, t); err != nil {
		return fmt.Errorf("store topic %s: %w", t.ID(), err)
	}
	return nil
}

// topicGroup builds one topic per anchor of an item that holds a nested
// list. Items without anchors yield a single unlinked topic.
func (d *dayParser) topicGroup(ctx context.Context, parents []*model.Topic, li, nested *html.Node) ([]*model.Topic, error) {
	head, anchors, err := itemHead(li, nested)
	if err != nil {
		return nil, err
	}

	if len(anchors) == 0 {
		label := strings.Trim(head.text, "\n ")
		t := &model.Topic{
			Raw:          label,
			Label:        label,
			ParentTopics: parents,
			Date:         d.date,
			Index:        d.topics,
			SourceURL:    d.sourceURL,
		}
		if err := d.storeTopic(ctx, t); err != nil {
			return nil, err
		}
		return []*model.Topic{t}, nil
	}

	portions := splitOutsideLinks(head.text, head.links)
	topics := make([]*model.Topic, 0, len(anchors))
	for _, a := range anchors {
		href := extract.AbsoluteURL(extract.Attr(a.node, "href"))
		var article *model.Article
		if d.parser.resolver != nil {
			// red links and other non-articles resolve to nil
			article, err = d.parser.resolver.Resolve(ctx, model.ResolveKey{URL: href, Scope: model.ScopeTopic, Budget: d.parser.topicBudget})
			if err != nil {
				return nil, fmt.Errorf("resolve topic %s: %w", href, err)
			}
		}
		label := labelFor(portions, a.start)
		if label == "" {
			label = strings.TrimSpace(a.text)
		}
		t := &model.Topic{
			Raw:          extract.Render(a.node),
			Label:        label,
			Href:         href,
			Article:      article,
			ParentTopics: parents,
			Date:         d.date,
			Index:        d.topics,
			SourceURL:    d.sourceURL,
		}
		if err := d.storeTopic(ctx, t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// event builds, stores and counts the event of a leaf item.
func (d *dayParser) event(ctx context.Context, parents []*model.Topic, li *html.Node) error {
	p := d.parser
	if p.sample > 0 && d.events >= p.sample {
		return errSampleReached
	}

	item, err := extract.ParseEventItem(li)
	if err != nil {
		return err
	}
	if p.resolver != nil {
		for _, i := range extract.ArticleLinkIndexes(item.Links) {
			a, err := p.resolver.Resolve(ctx, model.ResolveKey{URL: item.Links[i].Href, Scope: model.ScopeEvent, Budget: p.eventBudget})
			if err != nil {
				return fmt.Errorf("resolve %s: %w", item.Links[i].Href, err)
			}
			item.Links[i].Article = a
		}
	}

	sentences, stats := segment.Split(item.Text, item.Links)
	e := &model.Event{
		Raw:          extract.Render(li),
		ParentTopics: parents,
		Text:         item.Text,
		SourceURL:    d.sourceURL,
		Date:         d.date,
		Sentences:    sentences,
		SourceLinks:  item.SourceLinks,
		SourceText:   item.SourceText,
		EventTypes:   eventTypes(parents),
		Index:        d.events,
		Category:     category(parents),
		References:   item.References(),
	}
	d.events++

	rec := p.recorder
	rec.RecordAnalytic(analytics.Events, 1)
	rec.RecordAnalytic(analytics.EventSentences, len(sentences))
	rec.RecordAnalytic(analytics.SentencesWithMultipleLocation, stats.MultiLocationSentences)
	if len(e.EventTypes) > 0 {
		rec.RecordAnalytic(analytics.EventsWithType, 1)
	}
	if stats.LocationLinks > 0 {
		rec.RecordAnalytic(analytics.EventsWithLocation, 1)
	}
	if stats.LocationLinks > 1 {
		rec.RecordAnalytic(analytics.EventsWithMultipleLocations, 1)
	}

	if p.sink == nil {
		return nil
	}
	if err := p.sink.StoreEvent(ctx, e); err != nil {
		return fmt.Errorf("store event %s: %w", e.ID(), err)
	}
	return nil
}

// eventTypes merges the type labels of the parents' articles. When none of
// them has any, the search continues with their parents.
func eventTypes(parents []*model.Topic) map[string]string {
	types := make(map[string]string)
	for _, t := range parents {
		if t.Article != nil {
			maps.Copy(types, t.Article.TypeLabels)
		}
	}
	if len(types) > 0 {
		return types
	}
	for _, t := range parents {
		if len(t.ParentTopics) > 0 {
			maps.Copy(types, eventTypes(t.ParentTopics))
		}
	}
	if len(types) == 0 {
		return nil
	}
	return types
}

// category returns the label of the heading topic the parents descend from.
func category(parents []*model.Topic) string {
	if len(parents) == 0 {
		return ""
	}
	t := parents[0]
	for len(t.ParentTopics) > 0 {
		t = t.ParentTopics[0]
	}
	return t.Label
}
