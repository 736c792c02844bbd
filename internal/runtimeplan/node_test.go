package runtimeplan

import "testing"

func buildTree() *Node {
	leaf1 := &Node{ID: "t1", Type: NodeTypeText, Text: &TextNode{Value: "hello"}}
	leaf2 := &Node{ID: "t2", Type: NodeTypeText, Text: &TextNode{Value: "world"}}
	el := &Node{ID: "e1", Type: NodeTypeElement, Element: &ElementNode{Tag: "div", Children: []*Node{leaf1, leaf2}}}
	return &Node{ID: "root", Type: NodeTypeElement, Element: &ElementNode{Tag: "section", Children: []*Node{el}}}
}

func TestNode_WalkVisitsAllNodesPreOrder(t *testing.T) {
	root := buildTree()
	var order []string
	root.Walk(func(n *Node) bool {
		order = append(order, n.ID)
		return true
	})
	want := []string{"root", "e1", "t1", "t2"}
	if len(order) != len(want) {
		t.Fatalf("expected %d visits, got %d: %v", len(want), len(order), order)
	}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("expected order[%d]=%q, got %q (%v)", i, id, order[i], order)
		}
	}
}

func TestNode_WalkStopsDescentWhenVisitReturnsFalse(t *testing.T) {
	root := buildTree()
	var order []string
	root.Walk(func(n *Node) bool {
		order = append(order, n.ID)
		return n.ID != "e1"
	})
	want := []string{"root", "e1"}
	if len(order) != len(want) {
		t.Fatalf("expected descent stopped at e1's children, got %v", order)
	}
}

func TestNode_ChildrenForTextNodeIsNil(t *testing.T) {
	leaf := &Node{ID: "t1", Type: NodeTypeText, Text: &TextNode{Value: "hi"}}
	if children := leaf.Children(); children != nil {
		t.Fatalf("expected nil children for text node, got %v", children)
	}
}
