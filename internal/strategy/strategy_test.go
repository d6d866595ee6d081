package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier(ClassifierConfig{
		Ranges: []Range{
			{From: 10, To: 20, Category: Severe},
			{From: 15, To: 30, Category: Rotation},
		},
		Frames:        map[int]Category{12: KnownProblem},
		EscalateBelow: 0.7,
	})

	tests := []struct {
		name    string
		frameID int
		prior   Prior
		want    Category
	}{
		{name: "default standard", frameID: 0, want: Standard},
		{name: "range", frameID: 10, want: Severe},
		{name: "first range wins", frameID: 16, want: Severe},
		{name: "second range", frameID: 25, want: Rotation},
		{name: "frame set beats range", frameID: 12, want: KnownProblem},
		{name: "good prior keeps category", frameID: 0, prior: Prior{HasScore: true, Score: 0.9}, want: Standard},
		{name: "weak prior escalates standard", frameID: 0, prior: Prior{HasScore: true, Score: 0.5}, want: Moderate},
		{name: "weak prior escalates rotation", frameID: 25, prior: Prior{HasScore: true, Score: 0.2}, want: Severe},
		{name: "severe stays severe", frameID: 10, prior: Prior{HasScore: true, Score: 0.1}, want: Severe},
		{name: "score without flag ignored", frameID: 0, prior: Prior{Score: 0.1}, want: Standard},
		{name: "hint lifts standard", frameID: 0, prior: Prior{Hint: true}, want: Moderate},
		{name: "hint does not lower", frameID: 10, prior: Prior{Hint: true}, want: Severe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.frameID, tt.prior))
		})
	}
}

func TestClassifier_ConfigIsCopied(t *testing.T) {
	frames := map[int]Category{1: Severe}
	c := NewClassifier(ClassifierConfig{Frames: frames, EscalateBelow: 0.7})
	frames[1] = Standard

	assert.Equal(t, Severe, c.Classify(1, Prior{}))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("known_problem")
	require.NoError(t, err)
	assert.Equal(t, KnownProblem, c)

	_, err = ParseCategory("hard")
	assert.Error(t, err)
}

func TestGenerator_StrategiesFor(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig())

	t.Run("every category yields at least one", func(t *testing.T) {
		for _, c := range Categories {
			assert.NotEmpty(t, g.StrategiesFor(c, 100), c)
		}
		assert.NotEmpty(t, g.StrategiesFor(Category("bogus"), 0))
	})

	t.Run("standard is cheap", func(t *testing.T) {
		list := g.StrategiesFor(Standard, 100)
		assert.LessOrEqual(t, len(list), 2)
		assert.Equal(t, "baseline", list[0].Name)
	})

	t.Run("harder categories try more", func(t *testing.T) {
		assert.Greater(t, len(g.StrategiesFor(Severe, 100)), len(g.StrategiesFor(Moderate, 100)))
		assert.Greater(t, len(g.StrategiesFor(Moderate, 100)), len(g.StrategiesFor(Standard, 100)))
	})

	t.Run("budget truncates but never below one", func(t *testing.T) {
		g := NewGenerator(GeneratorConfig{Budget: map[Category]int{Severe: 3, Moderate: 0}})
		assert.Len(t, g.StrategiesFor(Severe, 0), 3)
		assert.Len(t, g.StrategiesFor(Moderate, 0), len(catalog[Moderate]))

		g = NewGenerator(GeneratorConfig{Budget: map[Category]int{Severe: 1}})
		assert.Len(t, g.StrategiesFor(Severe, 0), 1)
	})

	t.Run("mirror bonus on rotation frames", func(t *testing.T) {
		list := g.StrategiesFor(Rotation, 100)
		require.Equal(t, "mirror", list[0].Name)
		assert.InDelta(t, 1.1, list[0].Bonus, 1e-9)
		assert.InDelta(t, 1.0, list[1].Bonus, 1e-9)

		for _, s := range g.StrategiesFor(KnownProblem, 100) {
			if s.Name == "mirror" {
				assert.InDelta(t, 1.0, s.Bonus, 1e-9)
			}
		}
	})

	t.Run("lower enhance bonus on early frames", func(t *testing.T) {
		early := g.StrategiesFor(KnownProblem, 0)
		late := g.StrategiesFor(KnownProblem, 500)
		require.Equal(t, "lower_enhance", early[0].Name)
		assert.InDelta(t, 1.05, early[0].Bonus, 1e-9)
		assert.InDelta(t, 1.0, late[0].Bonus, 1e-9)
	})

	t.Run("results do not alias the catalog", func(t *testing.T) {
		list := g.StrategiesFor(Standard, 0)
		list[0].Steps[0].Kind = Mirror
		list[0].Bonus = 9

		again := g.StrategiesFor(Standard, 0)
		assert.Equal(t, Identity, again[0].Steps[0].Kind)
		assert.InDelta(t, 1.0, again[0].Bonus, 1e-9)
	})
}

func TestStrategy_Geometry(t *testing.T) {
	tests := []struct {
		name  string
		steps []Transform
		want  Geometry
	}{
		{"identity", []Transform{stepIdentity}, Geometry{}},
		{"mirror", []Transform{stepMirror}, Geometry{FlipX: true, SwapSides: true}},
		{"rotate", []Transform{stepRotate180}, Geometry{FlipX: true, FlipY: true}},
		{"mirror twice", []Transform{stepMirror, stepBright, stepMirror}, Geometry{}},
		{"mirror then rotate", []Transform{stepMirror, stepRotate180}, Geometry{FlipY: true, SwapSides: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Strategy{Name: tt.name, Steps: tt.steps}
			assert.Equal(t, tt.want, s.Geometry())
		})
	}
}

func TestStrategy_Apply(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	src := gocv.NewMatWithSize(40, 60, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.SetTo(gocv.NewScalar(50, 50, 50, 0))
	// mark the top-left pixel so flips are observable
	src.SetUCharAt3(0, 0, 0, 255)

	g := NewGenerator(DefaultGeneratorConfig())
	for _, cat := range Categories {
		for _, s := range g.StrategiesFor(cat, 0) {
			t.Run(string(cat)+"/"+s.Name, func(t *testing.T) {
				out, err := s.Apply(src)
				require.NoError(t, err)
				defer out.Close()

				assert.Equal(t, src.Rows(), out.Rows())
				assert.Equal(t, src.Cols(), out.Cols())
				assert.Equal(t, uint8(255), src.GetUCharAt3(0, 0, 0), "source must not change")
			})
		}
	}

	t.Run("mirror moves marked pixel", func(t *testing.T) {
		out, err := Strategy{Name: "m", Steps: []Transform{stepMirror}}.Apply(src)
		require.NoError(t, err)
		defer out.Close()
		assert.Equal(t, uint8(255), out.GetUCharAt3(0, 59, 0))
	})

	t.Run("brightness raises pixels", func(t *testing.T) {
		out, err := Strategy{Name: "b", Steps: []Transform{stepBright}}.Apply(src)
		require.NoError(t, err)
		defer out.Close()
		assert.Greater(t, out.GetUCharAt3(10, 10, 1), uint8(50))
	})
}

func TestStrategy_ApplyEmpty(t *testing.T) {
	src := gocv.NewMat()
	defer src.Close()

	out, err := Strategy{Name: "m", Steps: []Transform{stepMirror}}.Apply(src)
	require.NoError(t, err)
	defer out.Close()
	assert.True(t, out.Empty())
}
