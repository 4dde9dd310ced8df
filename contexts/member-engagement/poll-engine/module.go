package pollengine

import (
	"log/slog"
	"time"

	httpadapter "pollhub/contexts/member-engagement/poll-engine/adapters/http"
	"pollhub/contexts/member-engagement/poll-engine/adapters/memory"
	"pollhub/contexts/member-engagement/poll-engine/application/commands"
	"pollhub/contexts/member-engagement/poll-engine/application/queries"
	"pollhub/contexts/member-engagement/poll-engine/application/workers"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Members ports.MemberDirectory
	Sweeper workers.ExpirySweeper
	Store   *memory.Store
}

type Dependencies struct {
	Polls          ports.PollRepository
	Members        ports.MemberDirectory
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	SweepBatchSize int
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	pollUseCase := commands.PollUseCase{
		Polls:          deps.Polls,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	ballotUseCase := commands.BallotUseCase{
		Polls:  deps.Polls,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	optionUseCase := commands.OptionUseCase{
		Polls:  deps.Polls,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	tallyUseCase := queries.TallyUseCase{
		Polls:   deps.Polls,
		Members: deps.Members,
		Logger:  deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Polls:   pollUseCase,
			Ballots: ballotUseCase,
			Options: optionUseCase,
			Tallies: tallyUseCase,
			Clock:   deps.Clock,
			Logger:  deps.Logger,
		},
		Members: deps.Members,
		Sweeper: workers.ExpirySweeper{
			Polls:     deps.Polls,
			Clock:     deps.Clock,
			IDGen:     deps.IDGen,
			BatchSize: deps.SweepBatchSize,
			Logger:    deps.Logger,
		},
	}
}

func NewInMemoryModule(members []entities.Member, logger *slog.Logger) Module {
	store := memory.NewStore(members)
	module := NewModule(Dependencies{
		Polls:          store,
		Members:        store,
		Idempotency:    store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
