package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davidthor/scdctl/pkg/errors"
	"github.com/davidthor/scdctl/pkg/graph"
	"github.com/davidthor/scdctl/pkg/graph/visual"
	"github.com/davidthor/scdctl/pkg/project"
)

func newProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Inspect and scaffold catalog products",
		Long:    `List the products in .deployer/catalog.yaml, draw their dependency graph and add new products.`,
	}

	cmd.AddCommand(newProductsListCmd())
	cmd.AddCommand(newProductsGraphCmd())
	cmd.AddCommand(newProductsAddCmd())

	return cmd
}

func newProductsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog products",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			if ws.catalog == nil {
				return errors.ConfigurationError("catalog.yaml not found (run `scdctl init`)", nil)
			}

			out := cmd.OutOrStdout()
			names := ws.catalog.ProductNames()
			if len(names) == 0 {
				fmt.Fprintln(out, "(no products configured)")
				return nil
			}

			fmt.Fprintf(out, "%-16s %-16s %-20s %s\n", "NAME", "PORTFOLIO", "PATH", "DEPS")
			for _, name := range names {
				p := ws.catalog.Products[name]
				fmt.Fprintf(out, "%-16s %-16s %-20s %s\n",
					name, orDash(p.Portfolio), p.Path, orDash(strings.Join(p.Dependencies, ",")))
			}
			return nil
		},
	}
}

func newProductsGraphCmd() *cobra.Command {
	var (
		format     string
		output     string
		direction  string
		background string
		group      bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Draw the product dependency graph",
		Long: `Draw the catalog's dependency graph as an indented tree, a Mermaid
flowchart, or a PNG, SVG or PDF image rendered through mermaid-cli (mmdc).

Examples:
  scdctl products graph
  scdctl products graph --format mermaid --group-by-portfolio
  scdctl products graph --output catalog.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace()
			if err != nil {
				return err
			}
			if ws.catalog == nil {
				return errors.ConfigurationError("catalog.yaml not found (run `scdctl init`)", nil)
			}
			g := graph.FromCatalog(ws.catalog)

			mermaid := visual.MermaidOptions{GroupByPortfolio: group, Direction: direction}

			// An image extension on --output picks the format when none was given.
			if !cmd.Flags().Changed("format") {
				if f := visual.FormatFromPath(output); f != "" {
					format = f
				}
			}

			switch format {
			case "tree":
				return visual.RenderTree(cmd.OutOrStdout(), g)
			case "mermaid":
				text, err := visual.RenderMermaid(g, mermaid)
				if err != nil {
					return err
				}
				if output == "" {
					fmt.Fprint(cmd.OutOrStdout(), text)
					return nil
				}
				return writeOutput(cmd, output, []byte(text))
			case "png", "svg", "pdf":
				if output == "" {
					return fmt.Errorf("--output is required for %s format", format)
				}
				img, err := visual.RenderImage(context.Background(), g, visual.ImageOptions{
					MermaidOptions: mermaid,
					Format:         format,
					Background:     background,
				})
				if err != nil {
					return err
				}
				return writeOutput(cmd, output, img)
			default:
				return fmt.Errorf("unknown format %q (expected tree, mermaid, png, svg or pdf)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "tree", "Output format (tree, mermaid, png, svg, pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the graph to a file")
	cmd.Flags().StringVar(&direction, "direction", "TD", "Flowchart direction (TD, LR)")
	cmd.Flags().StringVar(&background, "background", "", "Image background colour (e.g., white, transparent)")
	cmd.Flags().BoolVar(&group, "group-by-portfolio", false, "Group products by portfolio")

	return cmd
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func newProductsAddCmd() *cobra.Command {
	var opts project.AddProductOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Scaffold a new product",
		Long: `Create products/<path>/ with a product.yaml and a placeholder CloudFormation
template, and register the product in .deployer/catalog.yaml.

Examples:
  scdctl products add --name networking --portfolio core --output VpcId
  scdctl products add --name app --dep networking --param-mapping VpcId=networking.VpcId`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := project.Load(projectOverride())
			if err != nil {
				return err
			}
			spec, err := layout.AddProduct(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  - %s\n", layout.CatalogFile())
			fmt.Fprintf(out, "  - %s/%s\n", layout.ProductsDir(), spec.Path)
			fmt.Fprintln(out, "Product added.")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Product name")
	cmd.Flags().StringVar(&opts.Path, "path", "", "Directory under products/ (default the name)")
	cmd.Flags().StringVar(&opts.Portfolio, "portfolio", "", "Portfolio the product belongs to")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Template description")
	cmd.Flags().StringArrayVar(&opts.Dependencies, "dep", nil, "Product this one depends on (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Outputs, "output", nil, "Output the template exports (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Mappings, "param-mapping", nil, "Parameter mapping Param=dep.output (repeatable)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
