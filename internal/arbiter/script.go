package arbiter

// BindingName is the host function the page script calls with either
// "human" or "automation".
const BindingName = "jobhuntrArbiterReport"

// Custom event channels dispatched on the page's global event target. The
// automated flow dispatches EventAutomation around every synthetic action;
// anything else arriving on the primitive listeners is presumed human until
// superseded.
const (
	EventHuman      = "jobhuntr-human-event"
	EventAutomation = "jobhuntr-automation-event"
)

// PageScript is injected into every driven page. It stays minimal on
// purpose: it forwards the three primitive input kinds plus the two custom
// channels to the host and keeps no state of its own.
const PageScript = `(() => {
	if (window.__jobhuntrArbiterInstalled) { return; }
	window.__jobhuntrArbiterInstalled = true;
	const report = (kind) => {
		const fn = window.` + BindingName + `;
		if (typeof fn === 'function') { fn(kind); }
	};
	for (const name of ['click', 'keydown', 'input']) {
		window.addEventListener(name, () => report('human'), true);
	}
	window.addEventListener('` + EventHuman + `', () => report('human'), true);
	window.addEventListener('` + EventAutomation + `', () => report('automation'), true);
})();`

// Report routes a page report into the state machine.
func (a *Arbiter) Report(kind string) {
	switch kind {
	case "automation":
		a.AutomationEvent()
	default:
		a.HumanInput()
	}
}
