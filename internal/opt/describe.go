package opt

// Description is the cheatsheet entry for one kind.
type Description struct {
	Kind       Kind   `json:"kind"`
	Name       string `json:"name"`
	UpdateRule string `json:"updateRule"` // LaTeX
	Where      string `json:"where"`
}

var descriptions = map[Kind]Description{
	GD: {
		Name:       "Gradient Descent",
		UpdateRule: `\theta_{t+1} = \theta_t - \eta \nabla f(\theta_t)`,
		Where: `θ are the coordinates (x, y), η is the learning rate and ∇f(θ) is the gradient of f. ` +
			`Every step moves straight downhill by an amount proportional to the slope.`,
	},
	Momentum: {
		Name: "Momentum",
		UpdateRule: `v_{t+1} = \mu v_t - \eta \nabla f(\theta_t) \\ ` +
			`\theta_{t+1} = \theta_t + v_{t+1}`,
		Where: `v is the velocity (starts at 0) and μ is the momentum coefficient. ` +
			`Past gradients keep pushing the point, which speeds up travel along shallow valleys and can overshoot.`,
	},
	Nesterov: {
		Name: "Nesterov Momentum",
		UpdateRule: `v_{t+1} = \mu v_t - \eta \nabla f(\theta_t) \\ ` +
			`\theta_{t+1} = \theta_t + \mu v_{t+1} - \eta \nabla f(\theta_t)`,
		Where: `Same velocity as momentum, but the step looks ahead along the velocity before adding the gradient term, ` +
			`which damps oscillation.`,
	},
	Adagrad: {
		Name: "Adagrad",
		UpdateRule: `G_{t+1} = G_t + g_t^2 \\ ` +
			`\theta_{t+1} = \theta_t - \frac{\eta}{\sqrt{G_{t+1}} + \epsilon} g_t`,
		Where: `g is the gradient, G the per-coordinate sum of squared gradients (starts at the initial accumulator) ` +
			`and ε a small constant. Steps shrink over time, faster along steep coordinates.`,
	},
	RMSprop: {
		Name: "RMSprop",
		UpdateRule: `s_{t+1} = \rho s_t + (1 - \rho) g_t^2 \\ ` +
			`\theta_{t+1} = \theta_t - \frac{\eta}{\sqrt{s_{t+1}} + \epsilon} g_t`,
		Where: `s is a decaying average of squared gradients and ρ its decay rate. ` +
			`Unlike Adagrad the step size does not vanish over time.`,
	},
	Adadelta: {
		Name: "Adadelta",
		UpdateRule: `s_{t+1} = \rho s_t + (1 - \rho) g_t^2 \\ ` +
			`\Delta\theta_t = -\frac{\sqrt{d_t + \epsilon}}{\sqrt{s_{t+1} + \epsilon}} g_t \\ ` +
			`d_{t+1} = \rho d_t + (1 - \rho) \Delta\theta_t^2 \\ ` +
			`\theta_{t+1} = \theta_t + \eta \Delta\theta_t`,
		Where: `s averages squared gradients, d averages squared updates and ρ is the decay rate. ` +
			`The ratio gives the update the same units as θ, so η is usually left at 1.`,
	},
	Adam: {
		Name: "Adam",
		UpdateRule: `m_{t+1} = \beta_1 m_t + (1 - \beta_1) g_t \\ ` +
			`v_{t+1} = \beta_2 v_t + (1 - \beta_2) g_t^2 \\ ` +
			`\hat{m} = \frac{m_{t+1}}{1 - \beta_1^{t+1}}, \quad \hat{v} = \frac{v_{t+1}}{1 - \beta_2^{t+1}} \\ ` +
			`\theta_{t+1} = \theta_t - \frac{\eta \hat{m}}{\sqrt{\hat{v}} + \epsilon}`,
		Where: `m and v are moving averages of the gradient and squared gradient, β₁ and β₂ their decay rates, ` +
			`and the hats denote bias correction for the zero initialisation.`,
	},
	Adamax: {
		Name: "Adamax",
		UpdateRule: `m_{t+1} = \beta_1 m_t + (1 - \beta_1) g_t \\ ` +
			`u_{t+1} = \max(\beta_2 u_t, |g_t|) \\ ` +
			`\theta_{t+1} = \theta_t - \frac{\eta}{1 - \beta_1^{t+1}} \frac{m_{t+1}}{u_{t+1} + \epsilon}`,
		Where: `u is an exponentially weighted infinity norm of past gradients; otherwise the same as Adam.`,
	},
	Nadam: {
		Name: "Nadam",
		UpdateRule: `\hat{m} = \frac{\beta_1 m_{t+1}}{1 - \beta_1^{t+2}} + \frac{(1 - \beta_1) g_t}{1 - \beta_1^{t+1}} \\ ` +
			`\theta_{t+1} = \theta_t - \frac{\eta \hat{m}}{\sqrt{\hat{v}} + \epsilon}`,
		Where: `m, v and v̂ are as in Adam; the first moment is replaced by a Nesterov look-ahead estimate.`,
	},
}

// Describe returns the cheatsheet entry for kind. The second result is false
// for unknown kinds.
func Describe(kind Kind) (Description, bool) {
	d, ok := descriptions[kind]
	if !ok {
		return Description{}, false
	}
	d.Kind = kind
	return d, true
}

// Name returns the display name of kind, or the kind itself when unknown.
func (k Kind) Name() string {
	if d, ok := descriptions[k]; ok {
		return d.Name
	}
	return string(k)
}
