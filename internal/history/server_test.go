package history

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/pipeline"
	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/session"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		detector    *mockDetector
		service     *Service
		sessions    *session.Manager
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(ServerConfig{
			Service:      service,
			Sessions:     sessions,
			BasicAuth:    auth,
			ScanInterval: 5 * time.Millisecond,
			ScanTimeout:  time.Second,
		}, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		// Routed handlers survive any number of requests, unlike the
		// ordered expectation handlers.
		anyPath := regexp.MustCompile(`.*`)
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		detector = newMockDetector()
		service = NewService(db, detector, newMockStorage())
		sessions = session.NewManager()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		sessions.CloseAll()
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	getJSON := func(path string, out any) *http.Response {
		resp, err := http.Get(ghttpServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		if out != nil {
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, out)).NotTo(HaveOccurred())
		}
		return resp
	}

	postJSON := func(path string, payload string, out any) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewBufferString(payload))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		if out != nil {
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, out)).NotTo(HaveOccurred())
		}
		return resp
	}

	uploadFile := func(path, filename string, data []byte) *http.Response {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+path, writer.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleHealth", func() {
		It("returns status OK", func() {
			var status map[string]string
			resp := getJSON("/api/health", &status)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(status["status"]).To(Equal("ok"))
		})
	})

	Describe("handleListScans", func() {
		When("scans exist", func() {
			BeforeEach(func() {
				db.scans["id1"] = &Scan{ID: "id1", Identifier: "354626223546262"}
				db.scans["id2"] = &Scan{ID: "id2", Identifier: "9876543210"}
			})

			It("returns all scans as JSON", func() {
				var scans []*Scan
				resp := getJSON("/api/scans", &scans)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(scans).To(HaveLen(2))
			})
		})

		When("no scans exist", func() {
			It("returns an empty list", func() {
				var scans []*Scan
				resp := getJSON("/api/scans", &scans)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(scans).To(BeEmpty())
			})
		})
	})

	Describe("handleUploadScan", func() {
		It("processes the upload and returns the journal entry", func() {
			resp := uploadFile("/api/scans", "label.png", pngBytes())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var scan Scan
			Expect(json.NewDecoder(resp.Body).Decode(&scan)).To(Succeed())
			Expect(scan.Identifier).To(Equal("354626223546262"))
			Expect(scan.Source).To(Equal(SourceUpload))
		})

		When("no identifier is found", func() {
			BeforeEach(func() {
				detector.detectErr = pipeline.ErrNoIdentifierFound
			})

			It("returns unprocessable entity", func() {
				resp := uploadFile("/api/scans", "label.png", pngBytes())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("no file is provided", func() {
			It("returns bad request", func() {
				resp := postJSON("/api/scans", "{}", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleManualScan", func() {
		It("journals the identifier", func() {
			var scan Scan
			resp := postJSON("/api/scans/manual", `{"identifier":"354626223546262"}`, &scan)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(scan.Source).To(Equal(SourceManual))
			Expect(scan.Identifier).To(Equal("354626223546262"))
		})

		It("rejects an empty identifier", func() {
			resp := postJSON("/api/scans/manual", `{"identifier":""}`, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed JSON", func() {
			resp := postJSON("/api/scans/manual", `{`, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleGetScan", func() {
		BeforeEach(func() {
			db.scans["id1"] = &Scan{ID: "id1", Identifier: "354626223546262"}
		})

		It("returns the scan", func() {
			var scan Scan
			resp := getJSON("/api/scans/id1", &scan)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(scan.Identifier).To(Equal("354626223546262"))
		})

		It("returns not found for an unknown id", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleDeleteScan", func() {
		BeforeEach(func() {
			db.scans["id1"] = &Scan{ID: "id1"}
		})

		It("removes the scan", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/scans/id1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.scans).NotTo(HaveKey("id1"))
		})
	})

	Describe("sessions", func() {
		type sessionDoc struct {
			ID     string           `json:"id"`
			State  string           `json:"state"`
			Mode   string           `json:"mode"`
			Error  string           `json:"error"`
			Result *pipeline.Result `json:"result"`
		}

		createSession := func(mode string) sessionDoc {
			var doc sessionDoc
			resp := postJSON("/api/sessions", `{"mode":"`+mode+`"}`, &doc)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			return doc
		}

		It("creates an upload-mode session in the idle state", func() {
			doc := createSession("upload")
			Expect(doc.ID).NotTo(BeEmpty())
			Expect(doc.State).To(Equal("idle"))
			Expect(doc.Mode).To(Equal("upload"))
		})

		It("creates and activates a camera-mode session", func() {
			doc := createSession("camera")
			Expect(doc.State).To(Equal("active"))
		})

		It("accepts an identifier from a pushed frame and journals it", func() {
			doc := createSession("camera")

			resp, err := http.Post(ghttpServer.URL()+"/api/sessions/"+doc.ID+"/frames", "image/png", bytes.NewReader(pngBytes()))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			Eventually(func() string {
				var got sessionDoc
				getJSON("/api/sessions/"+doc.ID, &got)
				return got.State
			}).Should(Equal("idle"))

			var got sessionDoc
			getJSON("/api/sessions/"+doc.ID, &got)
			Expect(got.Result).NotTo(BeNil())
			Expect(got.Result.Identifier).To(Equal("354626223546262"))

			journalled := func() bool {
				scans, _ := db.ListScans()
				for _, s := range scans {
					if s.Source == SourceCamera && s.Identifier == "354626223546262" {
						return true
					}
				}
				return false
			}
			Eventually(journalled).Should(BeTrue())
		})

		It("rejects a frame for an unknown session", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions/nope/frames", "image/png", bytes.NewReader(pngBytes()))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects an undecodable frame", func() {
			doc := createSession("camera")
			resp, err := http.Post(ghttpServer.URL()+"/api/sessions/"+doc.ID+"/frames", "image/png", bytes.NewBufferString("junk"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("switches a session to upload mode", func() {
			doc := createSession("camera")

			var got sessionDoc
			resp := postJSON("/api/sessions/"+doc.ID+"/mode", `{"mode":"upload"}`, &got)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(got.Mode).To(Equal("upload"))
			Expect(got.State).To(Equal("idle"))
		})

		It("rejects an unknown mode", func() {
			doc := createSession("camera")
			resp := postJSON("/api/sessions/"+doc.ID+"/mode", `{"mode":"telepathy"}`, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("emergency-stops and acknowledges a session", func() {
			doc := createSession("camera")

			var stopped sessionDoc
			resp := postJSON("/api/sessions/"+doc.ID+"/emergency-stop", "{}", &stopped)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(stopped.State).To(Equal("emergency_stopped"))

			var acked sessionDoc
			resp = postJSON("/api/sessions/"+doc.ID+"/acknowledge", "{}", &acked)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(acked.State).To(Equal("idle"))
		})

		It("rejects acknowledging a session that was not emergency-stopped", func() {
			doc := createSession("upload")
			resp := postJSON("/api/sessions/"+doc.ID+"/acknowledge", "{}", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("stops and removes a session", func() {
			doc := createSession("camera")

			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/sessions/"+doc.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, err = http.Get(ghttpServer.URL() + "/api/sessions/" + doc.ID)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "operator", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/scans")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts requests with the configured credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("operator", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health endpoint open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
