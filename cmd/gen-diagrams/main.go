// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/cdnflow/internal/collection"
	"github.com/rendis/cdnflow/internal/diagram"
	"github.com/rendis/cdnflow/internal/document"
	"github.com/rendis/cdnflow/internal/registry"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

type hop struct {
	typ    string
	handle string // output used toward the next hop
	status schema.NodeStatus
}

func main() {
	// origin → ssl → edge cache (miss) → regional cache → waf → gzip → end user
	hops := []hop{
		{registry.TypeOriginServer, "success", schema.NodeStatusSuccess},
		{registry.TypeSSLTermination, "secured", schema.NodeStatusSuccess},
		{registry.TypeEdgeCache, "miss", schema.NodeStatusSuccess},
		{registry.TypeRegionalCache, "hit", schema.NodeStatusSuccess},
		{registry.TypeWAF, "passed", schema.NodeStatusRunning},
		{registry.TypeGzipCompressor, "compressed", schema.NodeStatusWaiting},
		{registry.TypeEndUser, "", schema.NodeStatusIdle},
	}

	ctx := context.Background()
	reg := registry.Builtin()
	v, err := validation.NewDocumentValidator(reg, nil)
	if err != nil {
		fail("validator", err)
	}
	coll := collection.NewStore(collection.Config{Reducer: collection.NewReducer(reg), Validator: v})
	defer coll.Close()

	if _, err := coll.Dispatch(ctx, collection.CreateWorkflow{Name: "Global edge pipeline"}); err != nil {
		fail("create", err)
	}
	statuses := map[string]schema.NodeStatus{}
	var prev, prevHandle string
	for i, h := range hops {
		ch, err := coll.Dispatch(ctx, collection.AddNode{Type: h.typ, Position: schema.Position{X: float64(i * 220), Y: 80}})
		if err != nil {
			fail("add "+h.typ, err)
		}
		if prev != "" {
			conn := document.Connection{Source: prev, Target: ch.NodeID, SourceHandle: prevHandle}
			if _, err := coll.Dispatch(ctx, collection.AddEdge{Connection: conn}); err != nil {
				fail("connect "+h.typ, err)
			}
		}
		statuses[ch.NodeID] = h.status
		prev, prevHandle = ch.NodeID, h.handle
	}

	model, err := diagram.Build(coll.State().WorkingSet(), reg, statuses)
	if err != nil {
		fail("build", err)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fail("mkdir", err)
	}

	// ASCII (mermaid-ascii with hand-rolled fallback)
	home, _ := os.UserHomeDir()
	ascii := diagram.RenderASCIIAuto(ctx, model, filepath.Join(home, ".cdnflow", "bin"))
	write(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	write(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, err := diagram.RenderImage(ctx, model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", err)
		return
	}
	pngPath := filepath.Join(outDir, "diagram-sample.png")
	write(pngPath, png)
	fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fail("write "+path, err)
	}
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
