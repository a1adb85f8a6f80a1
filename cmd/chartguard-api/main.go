package main

import (
	"context"
	"strings"

	"chartguard/internal/adapters/genai"
	"chartguard/internal/adapters/pubmed"
	"chartguard/internal/core/phigate"
	"chartguard/internal/core/rulepack"
	"chartguard/internal/platform/config"
	"chartguard/internal/platform/kv"
	"chartguard/internal/platform/logger"
	"chartguard/internal/platform/web"
	"chartguard/internal/services/api"
	consultsvc "chartguard/internal/services/consult/service"
	credsrepo "chartguard/internal/services/creds/repo"
	credssvc "chartguard/internal/services/creds/service"
	verifyrepo "chartguard/internal/services/verify/repo"
	verifysvc "chartguard/internal/services/verify/service"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	genCfg := root.Prefix("SERVICE_GENAI_")
	pmCfg := root.Prefix("SERVICE_PUBMED_")

	l := logger.Get()
	ctx := context.Background()

	// rule pack: embedded defaults, optional file override
	var pack *rulepack.Pack
	var err error
	if path := apiCfg.MayString("RULES_FILE", ""); path != "" {
		pack, err = rulepack.LoadFile(path)
	} else {
		pack, err = rulepack.Load()
	}
	if err != nil {
		l.Panic().Err(err).Msg("rule pack load failed")
	}

	// store: postgres when configured, in-memory otherwise
	var store kv.Store
	if url := pgCfg.MayString("DBURL", ""); url != "" {
		pg, err := kv.OpenPG(ctx, url, int32(pgCfg.MayInt("MAX_CONNS", 4)))
		if err != nil {
			l.Panic().Err(err).Msg("postgres open failed")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			l.Panic().Err(err).Msg("postgres schema failed")
		}
		store = pg
		l.Info().Msg("state store: postgres")
	} else {
		store = kv.NewMemory()
		l.Warn().Msg("state store: in-memory (no SERVICE_PGSQL_DBURL set)")
	}

	gate := phigate.New(pack)
	rotator := credssvc.New(credsrepo.NewKV(store), nil)
	verifier := verifysvc.New(
		verifyrepo.NewKV(store),
		pubmed.NewClient(pubmed.Options{
			BaseURL: pmCfg.MayString("BASE_URL", ""),
			Timeout: pmCfg.MayDuration("TIMEOUT", 0),
		}),
		nil,
	)
	workflow := consultsvc.New(gate, rotator, consultsvc.GenAI{
		Client: genai.NewClient(genai.Options{
			BaseURL: genCfg.MayString("BASE_URL", ""),
			Model:   genCfg.MayString("MODEL", ""),
			Timeout: genCfg.MayDuration("TIMEOUT", 0),
		}),
	}, verifier)

	srv := web.NewServer(apiCfg)
	api.Mount(srv.Mux(), api.Deps{
		Gate:     gate,
		Rotator:  rotator,
		Verifier: verifier,
		Consult:  workflow,
	}, api.Options{
		CORSOrigins: splitCSV(apiCfg.MayString("CORS_ORIGINS", "*")),
		SwaggerOn:   apiCfg.MayBool("SWAGGER", true),
	})

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
