package opt

import "math"

// New validates cfg and builds its Stepper.
func New(cfg Config) (Stepper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case GD:
		return &gradientDescent{lr: cfg.LearningRate}, nil
	case Momentum:
		return &momentum{lr: cfg.LearningRate, mu: cfg.Momentum}, nil
	case Nesterov:
		return &momentum{lr: cfg.LearningRate, mu: cfg.Momentum, nesterov: true}, nil
	case Adagrad:
		return &adagrad{lr: cfg.LearningRate, eps: cfg.Epsilon, init: cfg.InitialAccumulator}, nil
	case RMSprop:
		return &rmsprop{lr: cfg.LearningRate, rho: cfg.Rho, eps: cfg.Epsilon}, nil
	case Adadelta:
		return &adadelta{lr: cfg.LearningRate, rho: cfg.Rho, eps: cfg.Epsilon}, nil
	case Adam, Adamax, Nadam:
		return &adam{kind: cfg.Kind, lr: cfg.LearningRate, beta1: cfg.Beta1, beta2: cfg.Beta2, eps: cfg.Epsilon}, nil
	}
	return nil, ErrUnknownKind
}

// state lazily allocates a zeroed slice matching x.
func state(s *[]float64, n int, init float64) []float64 {
	if len(*s) != n {
		*s = make([]float64, n)
		for i := range *s {
			(*s)[i] = init
		}
	}
	return *s
}

// gradientDescent: x = x - lr * g
type gradientDescent struct {
	lr float64
}

func (o *gradientDescent) Step(x, grad []float64) {
	for i, g := range grad {
		x[i] -= o.lr * g
	}
}

// momentum implements heavy-ball momentum and, with nesterov set, the
// look-ahead variant:
//
//	v = mu*v - lr*g
//	x = x + v                 (momentum)
//	x = x + mu*v - lr*g       (nesterov)
type momentum struct {
	lr, mu   float64
	nesterov bool
	v        []float64
}

func (o *momentum) Step(x, grad []float64) {
	v := state(&o.v, len(x), 0)
	for i, g := range grad {
		v[i] = o.mu*v[i] - o.lr*g
		if o.nesterov {
			x[i] += o.mu*v[i] - o.lr*g
		} else {
			x[i] += v[i]
		}
	}
}

// adagrad accumulates squared gradients:
//
//	a = a + g²
//	x = x - lr * g / (sqrt(a) + eps)
type adagrad struct {
	lr, eps, init float64
	acc           []float64
}

func (o *adagrad) Step(x, grad []float64) {
	a := state(&o.acc, len(x), o.init)
	for i, g := range grad {
		a[i] += g * g
		x[i] -= o.lr * g / (math.Sqrt(a[i]) + o.eps)
	}
}

// rmsprop keeps a decaying average of squared gradients:
//
//	s = rho*s + (1-rho)*g²
//	x = x - lr * g / (sqrt(s) + eps)
type rmsprop struct {
	lr, rho, eps float64
	s            []float64
}

func (o *rmsprop) Step(x, grad []float64) {
	s := state(&o.s, len(x), 0)
	for i, g := range grad {
		s[i] = o.rho*s[i] + (1-o.rho)*g*g
		x[i] -= o.lr * g / (math.Sqrt(s[i]) + o.eps)
	}
}

// adadelta scales steps by the ratio of running RMS of updates and gradients:
//
//	s = rho*s + (1-rho)*g²
//	dx = -sqrt(d + eps) / sqrt(s + eps) * g
//	d = rho*d + (1-rho)*dx²
//	x = x + lr*dx
type adadelta struct {
	lr, rho, eps float64
	s, d         []float64
}

func (o *adadelta) Step(x, grad []float64) {
	s := state(&o.s, len(x), 0)
	d := state(&o.d, len(x), 0)
	for i, g := range grad {
		s[i] = o.rho*s[i] + (1-o.rho)*g*g
		dx := -math.Sqrt(d[i]+o.eps) / math.Sqrt(s[i]+o.eps) * g
		d[i] = o.rho*d[i] + (1-o.rho)*dx*dx
		x[i] += o.lr * dx
	}
}

// adam covers Adam, Adamax and Nadam, which share the first moment estimate.
//
//	m = beta1*m + (1-beta1)*g
//	Adam:   v = beta2*v + (1-beta2)*g²;  x -= lr * m̂ / (sqrt(v̂) + eps)
//	Adamax: u = max(beta2*u, |g|);       x -= lr / (1-beta1^t) * m / (u + eps)
//	Nadam:  as Adam with m̂ = beta1*m/(1-beta1^(t+1)) + (1-beta1)*g/(1-beta1^t)
type adam struct {
	kind                  Kind
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  []float64
}

func (o *adam) Step(x, grad []float64) {
	m := state(&o.m, len(x), 0)
	v := state(&o.v, len(x), 0)
	o.t++

	bc1 := 1 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, g := range grad {
		m[i] = o.beta1*m[i] + (1-o.beta1)*g

		switch o.kind {
		case Adamax:
			v[i] = math.Max(o.beta2*v[i], math.Abs(g))
			x[i] -= o.lr / bc1 * m[i] / (v[i] + o.eps)
		case Nadam:
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			mHat := o.beta1*m[i]/(1-math.Pow(o.beta1, float64(o.t+1))) + (1-o.beta1)*g/bc1
			x[i] -= o.lr * mHat / (math.Sqrt(v[i]/bc2) + o.eps)
		default:
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			x[i] -= o.lr * (m[i] / bc1) / (math.Sqrt(v[i]/bc2) + o.eps)
		}
	}
}
