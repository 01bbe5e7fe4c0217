package command

import (
	"github.com/sandevgo/localrag/internal/core"
)

type Deps struct {
	Store     MemoryStore
	Index     DocumentIndex
	Loader    DocumentLoader
	Assembler ContextAssembler
	State     ModelState
}

func NewCommands(d Deps) []core.Command {
	return []core.Command{
		NewModelCommand(d.State),
		NewSearchCommand(d.Store),
		NewRecentCommand(d.Store),
		NewStatsCommand(d.Store),
		NewDocsCommand(d.Index),
		NewIndexCommand(d.Loader, d.Index),
		NewForgetCommand(d.Index),
		NewClearCommand(d.Store, d.Index),
		NewContextCommand(d.Assembler),
		NewSummaryCommand(d.Assembler),
	}
}
