package figma

import (
	"errors"
	"regexp"
	"strings"
)

// NodeTypeFrame is the node type exported by the handlers.
const NodeTypeFrame = "FRAME"

var (
	fileKeyPattern = regexp.MustCompile(`design/([a-zA-Z0-9]+)`)
	nodeIDPattern  = regexp.MustCompile(`node-id=([\w-]+)`)
)

// ErrInvalidURL is returned when a design URL lacks a file key or node id.
var ErrInvalidURL = errors.New("could not extract the file ID or node ID from the URL")

// Target identifies a node inside a file.
type Target struct {
	FileKey string
	// NodeID is in API form, e.g. "12:34".
	NodeID string
}

// ParseURL extracts the file key and node id of a design link. Links carry
// node ids as "12-34"; the API expects "12:34".
func ParseURL(raw string) (Target, error) {
	fileMatch := fileKeyPattern.FindStringSubmatch(raw)
	nodeMatch := nodeIDPattern.FindStringSubmatch(raw)
	if fileMatch == nil || nodeMatch == nil {
		return Target{}, ErrInvalidURL
	}
	return Target{
		FileKey: fileMatch[1],
		NodeID:  strings.Replace(nodeMatch[1], "-", ":", 1),
	}, nil
}

// FindNode searches the tree rooted at n depth-first.
func FindNode(n *Node, id string) *Node {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := FindNode(child, id); found != nil {
			return found
		}
	}
	return nil
}

// FindInDocument looks for id page by page.
func FindInDocument(file *File, id string) *Node {
	for _, page := range file.Document.Children {
		if found := FindNode(page, id); found != nil {
			return found
		}
	}
	return nil
}

// TopLevelFrames returns the direct FRAME children of n.
func TopLevelFrames(n *Node) []*Node {
	if n == nil {
		return nil
	}
	var frames []*Node
	for _, child := range n.Children {
		if child.Type == NodeTypeFrame {
			frames = append(frames, child)
		}
	}
	return frames
}

// ExportFrames picks the frames to export for target: the node itself when it
// is a frame, else its top-level frames, else the first page's top-level frames.
func ExportFrames(file *File, nodeID string) []*Node {
	var firstPage *Node
	if len(file.Document.Children) > 0 {
		firstPage = file.Document.Children[0]
	}

	target := FindInDocument(file, nodeID)
	if target == nil {
		return TopLevelFrames(firstPage)
	}
	if target.Type == NodeTypeFrame {
		return []*Node{target}
	}
	if frames := TopLevelFrames(target); len(frames) > 0 {
		return frames
	}
	return TopLevelFrames(firstPage)
}
