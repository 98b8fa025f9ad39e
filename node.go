package pixelmap

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// nodeIDCounter is a plain counter (no atomic, nodes are only touched from
// the frame goroutine).
var nodeIDCounter uint32

func nextNodeID() uint32 {
	nodeIDCounter++
	return nodeIDCounter
}

// Node is the scene graph element behind layers and tiles. A single flat
// struct is used for all node types to avoid interface dispatch on the hot
// path.
type Node struct {
	// Identity
	ID   uint32
	Name string
	Type NodeType

	// Hierarchy
	Parent   *Node
	children []*Node

	// Transform (local)
	X, Y           float64
	ScaleX, ScaleY float64
	PivotX, PivotY float64

	// Width and Height are the on-screen size of a sprite in world pixels.
	// The texture is stretched to fit.
	Width, Height float64

	// Computed during traversal.
	worldTransform [6]float64
	worldAlpha     float64
	transformDirty bool

	Alpha   float64
	Visible bool

	// Sprite fields (NodeTypeSprite)
	Color Color
	image *ebiten.Image // nil draws WhitePixel

	// Text fields (NodeTypeText)
	TextBlock *TextBlock

	// Metadata
	UserData any

	// dirty is shared with the owning scene; any visual change sets it so the
	// scene knows to redraw.
	dirty *bool

	disposed bool
}

// nodeDefaults sets the common default field values shared by all constructors.
func nodeDefaults(n *Node) {
	n.ID = nextNodeID()
	n.ScaleX = 1
	n.ScaleY = 1
	n.Alpha = 1
	n.Color = ColorWhite
	n.Visible = true
	n.transformDirty = true
}

// NewContainer creates a container node with no visual representation.
func NewContainer(name string) *Node {
	n := &Node{Name: name, Type: NodeTypeContainer}
	nodeDefaults(n)
	return n
}

// NewSprite creates a sprite node of the given size. A nil image draws a
// solid rectangle in the node's Color.
func NewSprite(name string, img *ebiten.Image, w, h float64) *Node {
	n := &Node{Name: name, Type: NodeTypeSprite, image: img, Width: w, Height: h}
	nodeDefaults(n)
	return n
}

// NewText creates a text node with the given content and font.
func NewText(name string, content string, font *Font) *Node {
	n := &Node{
		Name: name,
		Type: NodeTypeText,
		TextBlock: &TextBlock{
			Content: content,
			Font:    font,
			Color:   ColorWhite,
			dirty:   true,
		},
	}
	nodeDefaults(n)
	return n
}

// --- Visual setters ---

// SetTint sets the sprite tint and marks the node for redraw.
func (n *Node) SetTint(c Color) {
	n.Color = c
	n.invalidate()
}

// Tint returns the tint as a 0xRRGGBB value.
func (n *Node) Tint() uint32 {
	return n.Color.Hex()
}

// SetAlpha sets the node's alpha and marks it dirty.
func (n *Node) SetAlpha(a float64) {
	n.Alpha = a
	n.transformDirty = true
	n.invalidate()
}

// SetImage replaces the texture. nil reverts to a solid fill.
func (n *Node) SetImage(img *ebiten.Image) {
	n.image = img
	n.invalidate()
}

// Image returns the texture, or nil for a solid fill.
func (n *Node) Image() *ebiten.Image {
	return n.image
}

// SetSize sets the on-screen size in world pixels.
func (n *Node) SetSize(w, h float64) {
	n.Width = w
	n.Height = h
	n.invalidate()
}

// SetVisible shows or hides the node and its subtree.
func (n *Node) SetVisible(v bool) {
	n.Visible = v
	n.invalidate()
}

// SetText replaces the content of a text node.
func (n *Node) SetText(s string) {
	if n.TextBlock == nil || n.TextBlock.Content == s {
		return
	}
	n.TextBlock.Content = s
	n.TextBlock.dirty = true
	n.invalidate()
}

// invalidate flags the owning scene for redraw.
func (n *Node) invalidate() {
	if n.dirty != nil {
		*n.dirty = true
	}
}

// --- Tree manipulation ---

// AddChild appends child to this node's children.
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil, disposed, or an ancestor of this node (cycle).
func (n *Node) AddChild(child *Node) {
	if child == nil {
		panic("pixelmap: cannot add nil child")
	}
	if n.disposed || child.disposed {
		panic("pixelmap: AddChild on disposed node")
	}
	if isAncestor(child, n) {
		panic("pixelmap: adding child would create a cycle")
	}
	if child.Parent != nil {
		child.Parent.removeChildByPtr(child)
	}
	child.Parent = n
	n.children = append(n.children, child)
	attachSubtree(child, n.dirty)
	markSubtreeDirty(child)
	n.invalidate()
	if globalDebug {
		debugCheckChildCount(n)
	}
}

// RemoveChild detaches child from this node.
// Panics if child.Parent != n.
func (n *Node) RemoveChild(child *Node) {
	if child.Parent != n {
		panic("pixelmap: child's parent is not this node")
	}
	n.removeChildByPtr(child)
	child.Parent = nil
	attachSubtree(child, nil)
	markSubtreeDirty(child)
	n.invalidate()
}

// RemoveFromParent detaches this node from its parent.
// No-op if this node has no parent.
func (n *Node) RemoveFromParent() {
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// Children returns the child list. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// --- Disposal ---

// Dispose removes this node from its parent, marks it as disposed,
// and recursively disposes all descendants.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.RemoveFromParent()
	n.dispose()
}

func (n *Node) dispose() {
	n.disposed = true
	n.ID = 0
	for _, child := range n.children {
		child.Parent = nil
		child.dispose()
	}
	n.children = nil
	n.Parent = nil
	n.image = nil
	if n.TextBlock != nil {
		n.TextBlock.release()
		n.TextBlock = nil
	}
	n.UserData = nil
	n.dirty = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of node.
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from n.children without clearing child.Parent.
// Uses copy+nil to avoid retaining a dangling pointer in the backing array.
func (n *Node) removeChildByPtr(child *Node) {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			return
		}
	}
}

// markSubtreeDirty sets transformDirty on node and all its descendants.
func markSubtreeDirty(node *Node) {
	node.transformDirty = true
	for _, child := range node.children {
		markSubtreeDirty(child)
	}
}

// attachSubtree points node and its descendants at a scene dirty flag.
func attachSubtree(node *Node, dirty *bool) {
	node.dirty = dirty
	for _, child := range node.children {
		attachSubtree(child, dirty)
	}
}
