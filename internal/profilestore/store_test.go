package profilestore

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Professional", "professional"},
		{"My LinkedIn Voice", "my_linkedin_voice"},
		{"  Spaced   Out  ", "spaced_out"},
		{"weird!@#chars", "weirdchars"},
		{"under_score-ok", "under_score-ok"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNew_CreatesDefaultProfile(t *testing.T) {
	s := newTestStore(t)
	if !s.Exists(DefaultProfile) {
		t.Error("default profile not created")
	}
	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) == 0 || names[0] != DefaultProfile {
		t.Errorf("List = %v, want default first", names)
	}
}

func TestCreateAndSamples(t *testing.T) {
	s := newTestStore(t)

	err := s.Create("Professional", "first post\n\nsecond post")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	samples, err := s.Samples("professional")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0] != "first post" || samples[1] != "second post" {
		t.Errorf("samples = %q", samples)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("p", "x"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create("p", "y"); !errors.Is(err, ErrProfileExists) {
		t.Errorf("got %v, want ErrProfileExists", err)
	}
}

func TestCreate_InvalidName(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("!!!", "x"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("got %v, want ErrInvalidName", err)
	}
}

func TestAppend(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("p", "one"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Append("p", "two"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	samples, err := s.Samples("p")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
}

func TestAppend_Missing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append("ghost", "x"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("got %v, want ErrProfileNotFound", err)
	}
}

func TestSamples_Missing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Samples("ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("got %v, want ErrProfileNotFound", err)
	}
}

func TestSampleCount_Missing(t *testing.T) {
	s := newTestStore(t)
	if n := s.SampleCount("ghost"); n != 0 {
		t.Errorf("SampleCount = %d, want 0", n)
	}
}

func TestSplitSamples(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "blank line gap",
			in:   "one\n\ntwo",
			want: []string{"one", "two"},
		},
		{
			name: "marker line",
			in:   "one\n---\ntwo",
			want: []string{"one", "two"},
		},
		{
			name: "mixed markers and gaps",
			in:   "one\n\ntwo\n---\nthree",
			want: []string{"one", "two", "three"},
		},
		{
			name: "gap with trailing whitespace",
			in:   "one\n \t\ntwo",
			want: []string{"one", "two"},
		},
		{
			name: "large gap",
			in:   "one\n\n\n\ntwo",
			want: []string{"one", "two"},
		},
		{
			name: "empty pieces dropped",
			in:   "\n\n---\n\none\n\n",
			want: []string{"one"},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitSamples(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d samples %q, want %d", len(got), got, len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("sample[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestConcurrentAppend_NoLostUpdate(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create("p", "seed"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Append("p", fmt.Sprintf("post %d", i)); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	samples, err := s.Samples("p")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != n+1 {
		t.Errorf("got %d samples, want %d (lost update)", len(samples), n+1)
	}
}
