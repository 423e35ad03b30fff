// Package collage renders album covers into a single image.
//
// Two layouts are available. [Renderer.RenderGrid] draws a grid of rounded covers, and
// [Renderer.RenderCD] draws overlapping discs. Covers are loaded concurrently through an
// [ImageLoader]. A cover that fails to load is skipped and counted instead of failing the render.
//
// Rendering happens in the client process. The session server never calls into this package.
package collage
