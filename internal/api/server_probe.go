package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/probe"
	"github.com/dgnsrekt/pageprobe/internal/runstore"
	"github.com/dgnsrekt/pageprobe/internal/service"
)

const healthRoute = "/api/v1/health"

type runIDInput struct {
	RunID string `path:"run_id" doc:"Run identifier (UUID)"`
}

type selectorBody struct {
	Name     string `json:"name" doc:"Key used in dom.json captures" example:"heading"`
	Selector string `json:"selector" doc:"CSS selector" example:"h1"`
}

type interactionBody struct {
	Name     string `json:"name" doc:"Step name, [a-z0-9_-]+" example:"open_menu"`
	Click    string `json:"click" doc:"CSS selector to click" example:"#menu-button"`
	SettleMS int64  `json:"settle_ms,omitempty" doc:"Delay after the click in milliseconds; 0 uses the server default" minimum:"0"`
}

type probeRunOutput struct {
	Body struct {
		Run       runstore.RunMeta `json:"run"`
		Report    *probe.Report    `json:"report"`
		ReportURL string           `json:"report_url"`
	}
}

type runOutput struct {
	Body runstore.RunMeta
}

type artifactOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func registerProbeHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "run-probe", Method: http.MethodPost, Path: "/api/v1/probes", Summary: "Probe a page", Description: "Loads the URL in a headless browser, runs the optional click steps and stores the artifacts as a new run. Only one probe runs at a time.", Tags: []string{"Probes"}},
		func(ctx context.Context, input *struct {
			Body struct {
				URL          string            `json:"url" doc:"Absolute http or https URL" example:"https://example.com"`
				ConsoleCap   *int              `json:"console_cap,omitempty" doc:"Keep only the last N console entries" minimum:"0"`
				FullPage     *bool             `json:"full_page,omitempty" doc:"Capture the full scrollable page"`
				A11y         *bool             `json:"a11y,omitempty" doc:"Run the accessibility audit"`
				Markdown     *bool             `json:"markdown,omitempty" doc:"Also write page.md"`
				Selectors    []selectorBody    `json:"selectors,omitempty" doc:"Elements to snapshot at each step"`
				Interactions []interactionBody `json:"interactions,omitempty" doc:"Click steps in order"`
			}
		}) (*probeRunOutput, error) {
			req := service.ProbeRequest{
				URL:        input.Body.URL,
				ConsoleCap: input.Body.ConsoleCap,
				FullPage:   input.Body.FullPage,
				A11y:       input.Body.A11y,
				Markdown:   input.Body.Markdown,
			}
			for _, s := range input.Body.Selectors {
				req.Selectors = append(req.Selectors, config.SelectorEntry{Name: s.Name, Selector: s.Selector})
			}
			for _, in := range input.Body.Interactions {
				req.Interactions = append(req.Interactions, config.Interaction{Name: in.Name, Click: in.Click, Settle: msDuration(in.SettleMS)})
			}

			res, err := svc.RunProbe(ctx, req)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &probeRunOutput{}
			out.Body.Run = res.Run
			out.Body.Report = res.Report
			out.Body.ReportURL = artifactURL(res.Run.ID, probe.ReportFile)
			return out, nil
		})

	type listRunsOutput struct {
		Body struct {
			Runs []runstore.RunMeta `json:"runs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-probes", Method: http.MethodGet, Path: "/api/v1/probes", Summary: "List stored runs", Tags: []string{"Probes"}},
		func(ctx context.Context, input *struct{}) (*listRunsOutput, error) {
			runs, err := svc.ListRuns(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRunsOutput{}
			out.Body.Runs = runs
			if out.Body.Runs == nil {
				out.Body.Runs = []runstore.RunMeta{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-probe", Method: http.MethodGet, Path: "/api/v1/probes/{run_id}", Summary: "Get run metadata", Tags: []string{"Probes"}},
		func(ctx context.Context, input *runIDInput) (*runOutput, error) {
			meta, err := svc.GetRun(ctx, input.RunID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &runOutput{Body: meta}, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "get-probe-artifact",
		Method:      http.MethodGet,
		Path:        "/api/v1/probes/{run_id}/artifacts/{name}",
		Summary:     "Download a run artifact",
		Tags:        []string{"Probes"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Artifact content",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"image/png":        {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"text/html":        {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"text/markdown":    {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				},
			},
		},
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
		Name  string `path:"name" doc:"Artifact file name" example:"report.json"`
	}) (*artifactOutput, error) {
		data, ct, err := svc.ReadArtifact(ctx, input.RunID, input.Name)
		if err != nil {
			return nil, mapErr(err)
		}
		return &artifactOutput{ContentType: ct, Body: data}, nil
	})

	type deleteRunOutput struct {
		Body struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-probe", Method: http.MethodDelete, Path: "/api/v1/probes/{run_id}", Summary: "Delete a run and its artifacts", Tags: []string{"Probes"}},
		func(ctx context.Context, input *runIDInput) (*deleteRunOutput, error) {
			if err := svc.DeleteRun(ctx, input.RunID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteRunOutput{}
			out.Body.ID = input.RunID
			out.Body.Status = "deleted"
			return out, nil
		})
}

func registerHealthHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body service.Health
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: healthRoute, Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			return &healthOutput{Body: svc.Health(ctx)}, nil
		})
}

func artifactURL(id, name string) string {
	return "/api/v1/probes/" + id + "/artifacts/" + name
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
