package demoserver

// PageVersion is one revision of a demo page.
type PageVersion struct {
	HTML        string
	ContentType string
	Headers     map[string]string
}

// PageDefinition holds all versions of a single page.
type PageDefinition struct {
	Path        string
	Description string
	Versions    map[int]PageVersion
}

// GetAllPages returns all demo page definitions. Image names containing
// "nsfw", "adult", "explicit" or "porn" trip the heuristic classifier.
func GetAllPages() []PageDefinition {
	return []PageDefinition{
		getHomePage(),
		getGalleryPage(),
		getLazyPage(),
		getBackgroundsPage(),
		getVideoPage(),
	}
}

// ===== HOME PAGE =====

func getHomePage() PageDefinition {
	return PageDefinition{
		Path:        "/",
		Description: "Index linking every demo page",
		Versions: map[int]PageVersion{
			1: {HTML: `<!doctype html><html><head><title>cleanweb demo</title></head><body>
<h1>cleanweb demo pages</h1>
<ul>
<li><a href="/gallery">Gallery</a></li>
<li><a href="/lazy">Lazy images</a></li>
<li><a href="/backgrounds">Background images</a></li>
<li><a href="/video">Video posters</a></li>
</ul>
<img src="/images/logo.png" width="32" height="32" alt="logo">
</body></html>`},
		},
	}
}

// ===== GALLERY =====

func getGalleryPage() PageDefinition {
	return PageDefinition{
		Path:        "/gallery",
		Description: "Plain img elements; version 2 adds flagged images",
		Versions: map[int]PageVersion{
			1: {HTML: `<!doctype html><html><head><title>Gallery</title></head><body>
<h1>Gallery</h1>
<img id="cat" src="/images/cat.png" width="200" height="150">
<img id="flagged" src="/images/adult-nsfw.png" width="200" height="150">
<img id="ad" src="https://ads.example.test/banner.png" width="468" height="60">
</body></html>`},
			2: {HTML: `<!doctype html><html><head><title>Gallery</title></head><body>
<h1>Gallery</h1>
<img id="cat" src="/images/cat.png" width="200" height="150">
<img id="flagged" src="/images/adult-nsfw.png" width="200" height="150">
<img id="ad" src="https://ads.example.test/banner.png" width="468" height="60">
<img id="dog" src="/images/dog.png?utm_source=demo" width="200" height="150">
<img id="explicit" src="/images/explicit-porn.png" width="200" height="150">
</body></html>`},
		},
	}
}

// ===== LAZY =====

func getLazyPage() PageDefinition {
	return PageDefinition{
		Path:        "/lazy",
		Description: "Lazy-loading attributes instead of src",
		Versions: map[int]PageVersion{
			1: {HTML: `<!doctype html><html><head><title>Lazy</title></head><body>
<img class="lazy" data-src="/images/tree.png">
<img class="lazy" data-lazy-src="/images/nude-adult.png">
<img alt="no source">
</body></html>`},
		},
	}
}

// ===== BACKGROUNDS =====

func getBackgroundsPage() PageDefinition {
	return PageDefinition{
		Path:        "/backgrounds",
		Description: "CSS background images from a stylesheet and inline styles",
		Versions: map[int]PageVersion{
			1: {HTML: `<!doctype html><html><head><title>Backgrounds</title>
<style>
.hero { background-image: url('/images/hero.png'); width: 600px; height: 200px; }
.banner { background: #000 url("/images/explicit-nsfw.png") no-repeat; width: 300px; height: 100px; }
</style></head><body>
<div class="hero"></div>
<div class="banner"></div>
<span style="background-image: url(/images/icon.png); width: 16px; height: 16px"></span>
</body></html>`},
		},
	}
}

// ===== VIDEO =====

func getVideoPage() PageDefinition {
	return PageDefinition{
		Path:        "/video",
		Description: "Video elements with poster frames",
		Versions: map[int]PageVersion{
			1: {HTML: `<!doctype html><html><head><title>Video</title></head><body>
<video poster="/images/trailer.png" width="640" height="360"></video>
<video poster="/images/porn-adult.png" width="640" height="360"></video>
</body></html>`},
		},
	}
}
