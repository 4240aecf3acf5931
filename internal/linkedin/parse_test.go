package linkedin

import (
	"testing"
)

const profileHTML = `<html><body><main>
  <section>
    <h1 class="text-heading-xlarge">Jane Virtanen</h1>
    <div class="text-body-medium">Co-founder &amp; CEO at Acme Robotics</div>
  </section>
  <section>
    <div id="about"></div>
    <div class="inline-show-more-text">
      <span aria-hidden="true">Building autonomous forklifts for mid-size warehouses. Previously robotics lead at Kone.</span>
      <span class="visually-hidden">Building autonomous forklifts for mid-size warehouses. Previously robotics lead at Kone.</span>
    </div>
  </section>
  <section>
    <div id="experience"></div>
    <ul>
      <li class="artdeco-list__item">
        <span aria-hidden="true">Co-founder &amp; CEO</span>
        <span aria-hidden="true">Acme Robotics · Full-time</span>
        <span aria-hidden="true">Jan 2021 - Present · 4 yrs</span>
        <span aria-hidden="true">Helsinki, Finland</span>
        <span aria-hidden="true">Started the company to automate pallet movement end to end.</span>
      </li>
      <li class="artdeco-list__item">
        <span aria-hidden="true">Robotics Lead</span>
        <span aria-hidden="true">Kone</span>
        <span aria-hidden="true">2016 - 2021</span>
      </li>
    </ul>
  </section>
  <section>
    <div id="education"></div>
    <ul>
      <li class="artdeco-list__item">
        <span aria-hidden="true">Aalto University</span>
        <span aria-hidden="true">MSc, Mechatronics</span>
        <span aria-hidden="true">2010 - 2015</span>
      </li>
    </ul>
  </section>
</main></body></html>`

func TestParseProfile(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile(profileHTML, "https://www.linkedin.com/in/jane-virtanen")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "Jane Virtanen" {
		t.Fatalf("name = %q", p.Name)
	}
	if p.Headline != "Co-founder & CEO at Acme Robotics" {
		t.Fatalf("headline = %q", p.Headline)
	}
	if p.About == "" || p.About[:8] != "Building" {
		t.Fatalf("about = %q", p.About)
	}

	if len(p.Experience) != 2 {
		t.Fatalf("experience entries = %d: %#v", len(p.Experience), p.Experience)
	}
	first := p.Experience[0]
	if first.Title != "Co-founder & CEO" || first.Company != "Acme Robotics" {
		t.Fatalf("first experience = %#v", first)
	}
	if first.Period != "Jan 2021 - Present · 4 yrs" {
		t.Fatalf("period = %q", first.Period)
	}
	if first.Location != "Helsinki, Finland" {
		t.Fatalf("location = %q", first.Location)
	}
	if first.Description == "" {
		t.Fatalf("description lost: %#v", first)
	}
	if p.Experience[1].Company != "Kone" || p.Experience[1].Period != "2016 - 2021" {
		t.Fatalf("second experience = %#v", p.Experience[1])
	}

	if len(p.Education) != 1 {
		t.Fatalf("education entries = %d", len(p.Education))
	}
	edu := p.Education[0]
	if edu.School != "Aalto University" || edu.Degree != "MSc, Mechatronics" || edu.Period != "2010 - 2015" {
		t.Fatalf("education = %#v", edu)
	}
}

func TestParseProfile_MissingSections(t *testing.T) {
	t.Parallel()

	p, err := ParseProfile(`<html><body><h1>Someone Else</h1></body></html>`, "u")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "Someone Else" {
		t.Fatalf("name = %q", p.Name)
	}
	if p.About != "" || len(p.Experience) != 0 || len(p.Education) != 0 {
		t.Fatalf("missing sections must stay empty: %#v", p)
	}
}

func TestParseProfile_SparseListItems(t *testing.T) {
	t.Parallel()

	// Obfuscated markup sometimes collapses an item to one or two spans;
	// parsing must stay total, never panic.
	html := `<html><body><main>
	  <h1>Jane Virtanen</h1>
	  <section>
	    <div id="experience"></div>
	    <ul>
	      <li class="artdeco-list__item"><span aria-hidden="true">Founder</span></li>
	      <li class="artdeco-list__item">
	        <span aria-hidden="true">Advisor</span>
	        <span aria-hidden="true">Kone</span>
	      </li>
	    </ul>
	  </section>
	  <section>
	    <div id="education"></div>
	    <ul>
	      <li class="artdeco-list__item"><span aria-hidden="true">Aalto University</span></li>
	    </ul>
	  </section>
	</main></body></html>`

	p, err := ParseProfile(html, "u")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Experience) != 2 {
		t.Fatalf("experience entries = %d: %#v", len(p.Experience), p.Experience)
	}
	if p.Experience[0].Title != "Founder" || p.Experience[0].Company != "" {
		t.Fatalf("one-span item = %#v", p.Experience[0])
	}
	if p.Experience[1].Title != "Advisor" || p.Experience[1].Company != "Kone" {
		t.Fatalf("two-span item = %#v", p.Experience[1])
	}
	if len(p.Education) != 1 || p.Education[0].School != "Aalto University" || p.Education[0].Degree != "" {
		t.Fatalf("one-span education = %#v", p.Education)
	}
}

func TestMatchesName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		displayed, founder string
		want               bool
	}{
		{"Jane Virtanen", "Jane Virtanen", true},
		{"jane virtanen", "JANE VIRTANEN", true},
		{"  Jane Virtanen ", "Jane Virtanen", true},
		{"Jane Virtanen-Koski", "Jane Virtanen", false},
		{"Jane", "Jane Virtanen", false},
		{"", "Jane Virtanen", false},
	}
	for _, c := range cases {
		if got := matchesName(c.displayed, c.founder); got != c.want {
			t.Errorf("matchesName(%q, %q) = %v, want %v", c.displayed, c.founder, got, c.want)
		}
	}
}

func TestFirstProfileLink(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/feed/">home</a>
		<a href="https://www.linkedin.com/in/jane-virtanen?miniProfileUrn=urn%3Ali%3Afs">Jane Virtanen</a>
		<a href="/in/someone-else">Someone Else</a>
	</body></html>`
	got := firstProfileLink(html)
	if got != "https://www.linkedin.com/in/jane-virtanen" {
		t.Fatalf("first profile link = %q", got)
	}

	if got := firstProfileLink(`<html><body><a href="/feed/">home</a></body></html>`); got != "" {
		t.Fatalf("no profile links should yield empty, got %q", got)
	}
}

func TestIsChallenge(t *testing.T) {
	t.Parallel()

	if !isChallenge("https://www.linkedin.com/checkpoint/challenge/xyz", "<html></html>") {
		t.Fatal("checkpoint url must flag a challenge")
	}
	if !isChallenge("https://www.linkedin.com/login", `<html><body>Let's do a quick security check</body></html>`) {
		t.Fatal("page marker must flag a challenge")
	}
	if isChallenge("https://www.linkedin.com/feed/", "<html><body>Welcome back</body></html>") {
		t.Fatal("feed must not flag a challenge")
	}
}

func TestCookieRoundTrip(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/cookies.json"
	in := []cookie{
		{Name: "li_at", Value: "secret", Domain: ".linkedin.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true},
		{Name: "lang", Value: "en", Domain: ".linkedin.com", Path: "/"},
	}
	if err := saveCookies(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := loadCookies(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip mismatch: %#v", out)
	}
}
