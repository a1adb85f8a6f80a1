// Package api mounts the HTTP surface: gate, consult, citations, credentials
package api

import (
	stdhttp "net/http"
	"strconv"
	"time"

	"chartguard/internal/core/phigate"
	"chartguard/internal/core/version"
	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/web"
	"chartguard/internal/platform/web/bind"
	consultdom "chartguard/internal/services/consult/domain"
	credsdom "chartguard/internal/services/creds/domain"
	verifydom "chartguard/internal/services/verify/domain"

	"github.com/go-chi/chi/v5"
)

// Deps are the wired service ports
type Deps struct {
	Gate     *phigate.Gate
	Rotator  credsdom.RotatorPort
	Verifier verifydom.VerifierPort
	Consult  consultdom.WorkflowPort
}

// Options tune the mounted middleware
type Options struct {
	CORSOrigins []string
	SwaggerOn   bool
}

// Mount attaches middleware and all routes to the mux
func Mount(m *chi.Mux, d Deps, o Options) {
	m.Use(web.RealIP())
	m.Use(web.RequestID)
	m.Use(web.RecoverJSON)
	m.Use(web.AccessLog(web.AccessLogOptions{Slow: 2 * time.Second}))
	m.Use(web.CORS(web.CORSOptions{AllowedOrigins: o.CORSOrigins}))
	m.Use(web.NoCache())
	m.Use(web.Heartbeat("/ping"))
	m.Use(web.Timeout(90 * time.Second))

	h := &handlers{d: d}

	m.Route("/api/v1", func(r chi.Router) {
		r.Post("/gate/analyze", web.Handle(h.analyze))
		r.Post("/consult", web.Handle(h.consult))
		r.Post("/citations/verify", web.Handle(h.verify))
		r.Get("/credentials", web.Handle(h.credentialStatus))
		r.Put("/credentials/{index}", web.Handle(h.configureCredential))
	})

	m.Route("/meta", func(r chi.Router) {
		r.Get("/health", web.Handle(h.health))
		r.Get("/version", web.Handle(h.version))
	})

	web.MountSwagger(m, o.SwaggerOn)
}

type handlers struct{ d Deps }

func (h *handlers) analyze(r *stdhttp.Request) web.Response {
	in, err := bind.ParseJSON[AnalyzeRequest](r)
	if err != nil {
		return web.Error(err)
	}
	return web.OK(h.d.Gate.Analyze(in.Text))
}

func (h *handlers) consult(r *stdhttp.Request) web.Response {
	in, err := bind.ParseJSON[ConsultRequest](r)
	if err != nil {
		return web.Error(err)
	}
	res, err := h.d.Consult.Consult(r.Context(), in.Text)
	if err != nil {
		return web.Error(err)
	}
	return web.OK(res)
}

func (h *handlers) verify(r *stdhttp.Request) web.Response {
	in, err := bind.ParseJSON[VerifyRequest](r)
	if err != nil {
		return web.Error(err)
	}
	res, err := h.d.Verifier.Verify(r.Context(), in.IDs)
	if err != nil {
		return web.Error(err)
	}
	return web.OK(res)
}

func (h *handlers) credentialStatus(r *stdhttp.Request) web.Response {
	st, err := h.d.Rotator.Status(r.Context())
	if err != nil {
		return web.Error(err)
	}
	return web.OK(st)
}

func (h *handlers) configureCredential(r *stdhttp.Request) web.Response {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= credsdom.SlotCount {
		return web.Error(perr.InvalidArgf("slot index must be 0..%d", credsdom.SlotCount-1))
	}
	in, berr := bind.ParseJSON[ConfigureRequest](r)
	if berr != nil {
		return web.Error(berr)
	}
	if err := h.d.Rotator.Configure(r.Context(), idx, in.Material); err != nil {
		return web.Error(err)
	}
	st, err := h.d.Rotator.Status(r.Context())
	if err != nil {
		return web.Error(err)
	}
	return web.OK(st[idx])
}

func (h *handlers) health(*stdhttp.Request) web.Response {
	return web.OK(map[string]string{"health": "ok"})
}

func (h *handlers) version(*stdhttp.Request) web.Response {
	return web.OK(version.Info())
}
