package headless

import (
	"slices"
	"strings"

	"github.com/OCAP2/clustermap/pkg/engine"
)

// Container is a placement target holding DOM-like elements. Events fired on
// an element bubble to the container unless a handler stops propagation.
type Container struct {
	id       string
	surface  *Surface
	elements []*Element
	handlers map[string][]engine.Handler

	// navigations counts default actions that were not prevented
	navigations int
}

var _ engine.Container = (*Container)(nil)

func newContainer(id string) *Container {
	return &Container{id: id, handlers: make(map[string][]engine.Handler)}
}

func (c *Container) ID() string { return c.id }

// Surface returns the map bound to the container, or nil
func (c *Container) Surface() *Surface { return c.surface }

// QuerySelectorAll returns the elements matching a class selector (".name").
// Any other selector matches nothing.
func (c *Container) QuerySelectorAll(selector string) []engine.Element {
	class, ok := strings.CutPrefix(selector, ".")
	if !ok || class == "" {
		return nil
	}
	var out []engine.Element
	for _, el := range c.elements {
		if el.class == class {
			out = append(out, el)
		}
	}
	return out
}

// On registers a handler that receives events bubbling up from elements.
func (c *Container) On(eventType string, h engine.Handler) {
	c.handlers[eventType] = append(c.handlers[eventType], h)
}

// Navigations returns how many element default actions ran
func (c *Container) Navigations() int { return c.navigations }

func (c *Container) addElement(class, href string) *Element {
	el := &Element{container: c, class: class, href: href}
	c.elements = append(c.elements, el)
	return el
}

func (c *Container) removeElement(el *Element) {
	c.elements = slices.DeleteFunc(c.elements, func(e *Element) bool { return e == el })
	el.container = nil
}

func (c *Container) clearElements() {
	for _, el := range c.elements {
		el.container = nil
	}
	c.elements = nil
}

func (c *Container) bubble(e *engine.Event) {
	for _, h := range c.handlers[e.Type] {
		h(e)
	}
}

// Element is a node inside a container
type Element struct {
	container *Container
	class     string
	// href is followed on click unless a handler prevents the default
	href     string
	handlers map[string][]engine.Handler
}

var _ engine.Element = (*Element)(nil)

// Class returns the element's CSS class
func (el *Element) Class() string { return el.class }

func (el *Element) On(eventType string, h engine.Handler) {
	if el.handlers == nil {
		el.handlers = make(map[string][]engine.Handler)
	}
	el.handlers[eventType] = append(el.handlers[eventType], h)
}

// Click fires a click on the element. Handlers run in registration order, then
// the event bubbles to the container and the link is followed, each unless a
// handler suppressed it. The container is captured first because a handler
// may detach the element.
func (el *Element) Click() *engine.Event {
	e := &engine.Event{Type: engine.EventClick}
	c := el.container

	for _, h := range el.handlers[e.Type] {
		h(e)
	}
	if c == nil {
		return e
	}
	if !e.PropagationStopped() {
		c.bubble(e)
	}
	if el.href != "" && !e.DefaultPrevented() {
		c.navigations++
	}
	return e
}
