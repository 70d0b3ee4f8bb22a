package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/sunshow/jobhuntr/orchestrator/internal/arbiter"
	"github.com/sunshow/jobhuntr/orchestrator/internal/decision"
	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
	"github.com/sunshow/jobhuntr/orchestrator/internal/template"
)

const defaultElementWait = 10 * time.Second

func protoBlankPage() proto.TargetCreateTarget {
	return proto.TargetCreateTarget{URL: "about:blank"}
}

func viewport(width, height int) *proto.EmulationSetDeviceMetricsOverride {
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}
}

// installArbiter exposes the report binding and injects the page script on
// both the current document and every future navigation.
func installArbiter(page *rod.Page, arb *arbiter.Arbiter) (func() error, error) {
	stop, err := page.Expose(arbiter.BindingName, func(j gson.JSON) (interface{}, error) {
		arb.Report(j.Str())
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(arbiter.PageScript); err != nil {
		_ = stop()
		return nil, fmt.Errorf("inject page script: %w", err)
	}
	if _, err := page.Eval(arbiter.PageScript); err != nil {
		_ = stop()
		return nil, fmt.Errorf("inject page script: %w", err)
	}
	return stop, nil
}

// rodDriver implements run.Driver over one rod page.
type rodDriver struct {
	page        *rod.Page
	arb         *arbiter.Arbiter
	logger      *zap.SugaredLogger
	elementWait time.Duration
}

func newRodDriver(page *rod.Page, arb *arbiter.Arbiter, logger *zap.SugaredLogger) *rodDriver {
	return &rodDriver{
		page:        page,
		arb:         arb,
		logger:      logger,
		elementWait: defaultElementWait,
	}
}

// signalAutomation marks the surrounding events as synthetic so the arbiter
// does not mistake driver input for a human.
func (d *rodDriver) signalAutomation(page *rod.Page) {
	script := `() => window.dispatchEvent(new Event('` + arbiter.EventAutomation + `'))`
	if _, err := page.Eval(script); err != nil {
		d.logger.Debugw("Automation signal failed", "error", err)
	}
}

// automated runs a synthetic action bracketed by automation signals.
func (d *rodDriver) automated(page *rod.Page, fn func() error) error {
	d.signalAutomation(page)
	err := fn()
	d.signalAutomation(page)
	return err
}

func (d *rodDriver) element(page *rod.Page, sel string) (*rod.Element, error) {
	el, err := page.Timeout(d.elementWait).Element(sel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", run.ErrElementNotFound, sel)
	}
	return el, nil
}

func (d *rodDriver) navigate(page *rod.Page, url string) error {
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", run.ErrNavigationTimeout, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %s: %v", run.ErrNavigationTimeout, url, err)
	}
	return nil
}

const captchaProbe = `() => {
	const sel = 'iframe[src*="captcha"], iframe[src*="challenge"], .g-recaptcha, [data-sitekey], #captcha';
	if (document.querySelector(sel)) { return true; }
	const text = (document.body && document.body.innerText || '').slice(0, 3000);
	return /verify you are human|unusual activity|are you a robot/i.test(text);
}`

func (d *rodDriver) checkCaptcha(page *rod.Page) error {
	obj, err := page.Eval(captchaProbe)
	if err != nil {
		d.logger.Debugw("Captcha probe failed", "error", err)
		return nil
	}
	if obj.Value.Bool() {
		return run.ErrCaptchaDetected
	}
	return nil
}

// ─── run.Driver ───────────────────────────────────────────────────────────────

func (d *rodDriver) Search(ctx context.Context, p *template.SearchParams, keywords, location string) error {
	page := d.page.Context(ctx)

	if err := d.navigate(page, p.URL); err != nil {
		return err
	}
	if err := d.checkCaptcha(page); err != nil {
		return err
	}

	kw, err := d.element(page, p.KeywordsSelector)
	if err != nil {
		return err
	}
	if err := d.automated(page, func() error {
		_ = kw.SelectAllText()
		return kw.Input(keywords)
	}); err != nil {
		return fmt.Errorf("fill keywords: %w", err)
	}

	if p.LocationSelector != "" && location != "" {
		loc, err := d.element(page, p.LocationSelector)
		if err != nil {
			return err
		}
		if err := d.automated(page, func() error {
			_ = loc.SelectAllText()
			return loc.Input(location)
		}); err != nil {
			return fmt.Errorf("fill location: %w", err)
		}
	}

	submit, err := d.element(page, p.SubmitSelector)
	if err != nil {
		return err
	}
	if err := d.automated(page, func() error {
		return submit.Click(proto.InputMouseButtonLeft, 1)
	}); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: search results: %v", run.ErrNavigationTimeout, err)
	}
	return d.checkCaptcha(page)
}

func (d *rodDriver) ListingCount(ctx context.Context, p *template.OpenListingParams) (int, error) {
	page := d.page.Context(ctx)

	// Wait for the first card so an empty slice means no results, not a
	// page still loading.
	if _, err := page.Timeout(d.elementWait).Element(p.ListSelector); err != nil {
		return 0, nil
	}
	els, err := page.Elements(p.ListSelector)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", run.ErrElementNotFound, p.ListSelector)
	}
	return len(els), nil
}

func (d *rodDriver) OpenListing(ctx context.Context, p *template.OpenListingParams, index int) (string, error) {
	page := d.page.Context(ctx)

	els, err := page.Elements(p.ListSelector)
	if err != nil || index >= len(els) {
		return "", fmt.Errorf("%w: %s[%d]", run.ErrElementNotFound, p.ListSelector, index)
	}
	card := els[index]

	if err := d.automated(page, func() error {
		if serr := card.ScrollIntoView(); serr != nil {
			return serr
		}
		return card.Click(proto.InputMouseButtonLeft, 1)
	}); err != nil {
		return "", fmt.Errorf("open listing %d: %w", index, err)
	}

	if _, err := d.element(page, p.DetailSelector); err != nil {
		return "", err
	}
	if err := d.checkCaptcha(page); err != nil {
		return "", err
	}

	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (d *rodDriver) ExtractJob(ctx context.Context, p *template.ExtractJobParams) (*run.Job, error) {
	page := d.page.Context(ctx)

	job := &run.Job{}
	fields := []struct {
		sel  string
		dest *string
	}{
		{p.TitleSelector, &job.Title},
		{p.CompanySelector, &job.Company},
		{p.DescriptionSelector, &job.Description},
	}
	for _, f := range fields {
		el, err := d.element(page, f.sel)
		if err != nil {
			return nil, err
		}
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.sel, err)
		}
		*f.dest = strings.TrimSpace(text)
	}

	if info, err := page.Info(); err == nil {
		job.URL = info.URL
	}

	questions, err := d.extractQuestions(page)
	if err != nil {
		d.logger.Debugw("Question extraction failed", "error", err)
	}
	job.Questions = questions
	return job, nil
}

// questionsScript walks visible form fields and reports them as screening
// questions with their widget kind and options.
const questionsScript = `() => {
	const out = [];
	const labelFor = (el) => {
		if (el.labels && el.labels.length) { return el.labels[0].innerText.trim(); }
		if (el.closest('label')) { return el.closest('label').innerText.trim(); }
		const aria = el.getAttribute('aria-label');
		if (aria) { return aria.trim(); }
		return '';
	};
	const seen = new Set();
	for (const el of document.querySelectorAll('input, textarea, select')) {
		if (el.type === 'hidden' || el.offsetParent === null) { continue; }
		const prompt = labelFor(el);
		if (!prompt || seen.has(prompt)) { continue; }
		seen.add(prompt);
		let kind = 'text';
		let options = [];
		if (el.tagName === 'TEXTAREA') {
			kind = 'multiline';
		} else if (el.tagName === 'SELECT') {
			kind = el.multiple ? 'multi_select' : 'select';
			options = Array.from(el.options).map(o => o.text.trim()).filter(Boolean);
		} else if (el.type === 'radio') {
			kind = 'radio';
			const group = document.querySelectorAll('input[type=radio][name="' + el.name + '"]');
			options = Array.from(group).map(labelFor).filter(Boolean);
		} else if (el.type === 'checkbox') {
			kind = 'multi_select';
			options = [labelFor(el)].filter(Boolean);
		}
		out.push({ prompt, kind, options });
	}
	return JSON.stringify(out);
}`

func (d *rodDriver) extractQuestions(page *rod.Page) ([]decision.Question, error) {
	obj, err := page.Eval(questionsScript)
	if err != nil {
		return nil, err
	}
	var questions []decision.Question
	if err := json.Unmarshal([]byte(obj.Value.Str()), &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return questions, nil
}

// fillScript fills one answered question by matching its label text. Value
// setting dispatches input and change events so framework-bound forms pick
// the change up.
const fillScript = `(raw) => {
	const ans = JSON.parse(raw);
	const matches = (el, prompt) => {
		const label = (el.labels && el.labels.length && el.labels[0].innerText)
			|| (el.closest('label') && el.closest('label').innerText)
			|| el.getAttribute('aria-label') || '';
		return label.trim() === prompt;
	};
	const fire = (el) => {
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	};
	for (const el of document.querySelectorAll('input, textarea, select')) {
		if (!matches(el, ans.prompt)) { continue; }
		if (el.tagName === 'SELECT') {
			const wanted = ans.values && ans.values.length ? ans.values : [ans.value];
			for (const o of el.options) { o.selected = wanted.includes(o.text.trim()); }
			fire(el);
			return true;
		}
		if (el.type === 'radio') {
			const group = document.querySelectorAll('input[type=radio][name="' + el.name + '"]');
			for (const r of group) {
				const label = (r.labels && r.labels.length && r.labels[0].innerText || '').trim();
				if (label === ans.value) { r.checked = true; fire(r); return true; }
			}
			return false;
		}
		if (el.type === 'checkbox') {
			const label = (el.labels && el.labels.length && el.labels[0].innerText || '').trim();
			el.checked = !!(ans.values && ans.values.includes(label));
			fire(el);
			return true;
		}
		el.value = ans.value;
		fire(el);
		return true;
	}
	return false;
}`

func (d *rodDriver) SubmitApplication(ctx context.Context, p *template.SubmitParams, answers []decision.Answer) error {
	page := d.page.Context(ctx)

	apply, err := d.element(page, p.ApplySelector)
	if err != nil {
		return err
	}
	if text, terr := apply.Text(); terr == nil && strings.Contains(strings.ToLower(text), "applied") {
		return run.ErrAlreadyApplied
	}
	if err := d.automated(page, func() error {
		return apply.Click(proto.InputMouseButtonLeft, 1)
	}); err != nil {
		return fmt.Errorf("open application form: %w", err)
	}
	if err := d.checkCaptcha(page); err != nil {
		return err
	}

	for _, ans := range answers {
		raw, merr := json.Marshal(ans)
		if merr != nil {
			return fmt.Errorf("encode answer: %w", merr)
		}
		if err := d.automated(page, func() error {
			obj, eerr := page.Eval(fillScript, string(raw))
			if eerr != nil {
				return eerr
			}
			if !obj.Value.Bool() {
				return fmt.Errorf("%w: question %q", run.ErrElementNotFound, ans.Prompt)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	submit, err := d.element(page, p.SubmitSelector)
	if err != nil {
		return err
	}
	if err := d.automated(page, func() error {
		return submit.Click(proto.InputMouseButtonLeft, 1)
	}); err != nil {
		return fmt.Errorf("submit application: %w", err)
	}

	if p.ConfirmationSelector != "" {
		if _, err := d.element(page, p.ConfirmationSelector); err != nil {
			return err
		}
	}
	return nil
}

func (d *rodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return png, nil
}
