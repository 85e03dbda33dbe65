package document

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TokenKind distinguishes the two token shapes produced by Walk.
type TokenKind int

const (
	// TokenHeading marks the start of an h1-h6 element.
	TokenHeading TokenKind = iota
	// TokenText is a visible text run outside any heading.
	TokenText
)

// Token is one position in the flattened document.
type Token struct {
	Kind TokenKind
	// Level is 1-6 for headings, 0 for text.
	Level int
	Text  string
	// Heading is the index of the heading token this run follows, -1 before
	// the first heading.
	Heading int
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3,
	atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// invisible elements whose text never reaches the reader
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Walk parses r and returns its headings and visible text runs in document
// order.
func Walk(r io.Reader) ([]Token, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	w := &walker{current: -1}
	w.visit(root)
	return w.tokens, nil
}

type walker struct {
	tokens  []Token
	current int
}

func (w *walker) visit(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if level, ok := headingLevels[n.DataAtom]; ok {
			w.tokens = append(w.tokens, Token{
				Kind:    TokenHeading,
				Level:   level,
				Text:    collapse(textOf(n)),
				Heading: w.current,
			})
			w.current = len(w.tokens) - 1
			return
		}
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			w.tokens = append(w.tokens, Token{Kind: TokenText, Text: n.Data, Heading: w.current})
		}
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

// textOf concatenates the visible text below n like a DOM textContent.
func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// collapse folds every whitespace run to one space and trims the ends.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
