package object

import "github.com/dlr-wf/go-crackmnist/internal/message"

// Message returns the first message of the given type, or nil.
func (h *Header) Message(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

func (h *Header) Dataspace() *message.Dataspace {
	m, _ := h.Message(message.TypeDataspace).(*message.Dataspace)
	return m
}

func (h *Header) Datatype() *message.Datatype {
	m, _ := h.Message(message.TypeDatatype).(*message.Datatype)
	return m
}

func (h *Header) Layout() *message.Layout {
	m, _ := h.Message(message.TypeLayout).(*message.Layout)
	return m
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	m, _ := h.Message(message.TypeFilterPipeline).(*message.FilterPipeline)
	return m
}

func (h *Header) SymbolTable() *message.SymbolTable {
	m, _ := h.Message(message.TypeSymbolTable).(*message.SymbolTable)
	return m
}

func (h *Header) LinkInfo() *message.LinkInfo {
	m, _ := h.Message(message.TypeLinkInfo).(*message.LinkInfo)
	return m
}

// Links returns the link messages of a compact group in header order.
func (h *Header) Links() []*message.Link {
	var links []*message.Link
	for _, m := range h.Messages {
		if l, ok := m.(*message.Link); ok {
			links = append(links, l)
		}
	}
	return links
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.Layout() != nil && h.Dataspace() != nil
}

// IsGroup reports whether the header describes a group of either style.
func (h *Header) IsGroup() bool {
	if h.SymbolTable() != nil || h.LinkInfo() != nil {
		return true
	}
	return h.Message(message.TypeGroupInfo) != nil || len(h.Links()) > 0
}
