package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// SyntaxChecker parses sources with tree-sitter and rejects files whose
// syntax tree contains errors. Files with unknown extensions pass.
type SyntaxChecker struct {
	languages map[string]*sitter.Language
}

// NewSyntaxChecker returns a checker for Python, Go, JavaScript, TypeScript
// and PHP sources.
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{
		languages: map[string]*sitter.Language{
			".py":  python.GetLanguage(),
			".go":  golang.GetLanguage(),
			".js":  javascript.GetLanguage(),
			".mjs": javascript.GetLanguage(),
			".ts":  typescript.GetLanguage(),
			".php": php.GetLanguage(),
		},
	}
}

// Supports reports whether files with the extension of path are checked.
func (c *SyntaxChecker) Supports(path string) bool {
	_, ok := c.languages[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Check parses src as the language implied by path.
func (c *SyntaxChecker) Check(path string, src []byte) error {
	lang, ok := c.languages[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	if bad := firstError(root); bad != nil {
		return fmt.Errorf("syntax error at line %d", bad.StartPoint().Row+1)
	}
	return fmt.Errorf("syntax error")
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}
