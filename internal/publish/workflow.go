package publish

// WorkflowPath is where the Pages deployment workflow is committed.
const WorkflowPath = ".github/workflows/deploy.yml"

const workflowMessage = "ci: Add GitHub Pages deployment workflow"

// deployWorkflow publishes the repository root as a static site on every
// push to main.
const deployWorkflow = `name: Deploy static content to Pages
on:
  push:
    branches: ["main"]
  workflow_dispatch:
permissions:
  contents: read
  pages: write
  id-token: write
concurrency:
  group: "pages"
  cancel-in-progress: false
jobs:
  deploy:
    environment:
      name: github-pages
      url: ${{ steps.deployment.outputs.page_url }}
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@v4
      - name: Setup Pages
        uses: actions/configure-pages@v4
      - name: Upload artifact
        uses: actions/upload-pages-artifact@v3
        with:
          path: '.'
      - name: Deploy to GitHub Pages
        id: deployment
        uses: actions/deploy-pages@v4
`

// DeployWorkflow returns the workflow definition committed on round 1.
func DeployWorkflow() []byte { return []byte(deployWorkflow) }
